package fleet

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nagini/internal/fleet/mocks"
)

func TestStartAllUsesRemoteShell(t *testing.T) {
	f := startFleet(t, threeHosts, "    exec: java\n")
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	shell := mocks.NewMockRemoteShell(ctrl)
	f.client.shell = shell

	script := filepath.Join(f.base, "nagini", "bin", "nagini-server.sh")
	cmd := func(host string) string {
		return "sudo -u nagini -sn bash " + script + " " + filepath.Join(f.base, "config") + " " + host
	}
	shell.EXPECT().Run(gomock.Any(), "alpha", cmd("alpha"), gomock.Any()).Return(nil)
	shell.EXPECT().Run(gomock.Any(), "beta", cmd("beta"), gomock.Any()).Return(errors.New("exit status 255"))
	shell.EXPECT().Run(gomock.Any(), "gamma", cmd("gamma"), gomock.Any()).Return(nil)

	rep := f.client.StartAll(context.Background())
	require.Len(t, rep.Outcomes, 3)
	err := rep.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "start agent on beta")

	got := outcomes(rep)
	assert.NoError(t, got["alpha"])
	assert.NoError(t, got["gamma"])
}

func TestExecShell(t *testing.T) {
	var out bytes.Buffer
	sh := &ExecShell{Program: "echo", Dir: t.TempDir()}
	require.NoError(t, sh.Run(context.Background(), "alpha", "uptime", &out))
	assert.Equal(t, "alpha uptime\n", out.String())

	sh = &ExecShell{Program: "false"}
	assert.Error(t, sh.Run(context.Background(), "alpha", "uptime", &out))
}
