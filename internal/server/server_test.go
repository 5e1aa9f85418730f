package server

import (
	"bytes"
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/transfer"
)

const (
	waitFor = 5 * time.Second
	pollIn  = 20 * time.Millisecond
)

type fixture struct {
	base   string
	cfgDir string
	srv    *Server
	addr   string
	served chan error
	cancel context.CancelFunc
}

const runScript = `echo started
echo node-$1
sleep 30
`

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func serverYAML(base, app string) string {
	return "server:\n" +
		"  base_path: " + base + "\n" +
		"  port: 0\n" +
		"  app:\n" + app
}

func newFixture(t *testing.T, app string) *fixture {
	t.Helper()
	base := t.TempDir()
	cfgDir := filepath.Join(base, "config")
	writeFile(t, filepath.Join(cfgDir, "nagini.yaml"), serverYAML(base, app))
	writeFile(t, filepath.Join(cfgDir, "host.list"), "alpha, 1, 2\nbeta, 3\n")
	writeFile(t, filepath.Join(cfgDir, "application", "app.conf"), "shared=1\n")
	writeFile(t, filepath.Join(base, "application", "run.sh"), runScript)

	srv, err := New(cfgDir, "alpha", WithTick(10*time.Millisecond))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f := &fixture{
		base:   base,
		cfgDir: cfgDir,
		srv:    srv,
		addr:   "127.0.0.1:" + strconv.Itoa(srv.Addr().(*net.TCPAddr).Port),
		served: make(chan error, 1),
		cancel: cancel,
	}
	go func() { f.served <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-f.served:
		case <-time.After(waitFor):
			t.Error("server did not shut down")
		}
	})
	return f
}

const scriptApp = "    start_command: sh $/application/run.sh #\n"

func (f *fixture) roundTrip(t *testing.T, req protocol.Request) protocol.Response {
	t.Helper()
	c, err := protocol.Dial(context.Background(), nil, f.addr, time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, protocol.WriteRequest(c, req))
	resp, err := protocol.ReadResponse(c)
	require.NoError(t, err)
	return resp
}

func message(t *testing.T, resp protocol.Response, want protocol.ResponseKind) string {
	t.Helper()
	require.Equal(t, want, resp.Kind(), "response: %#v", resp)
	switch r := resp.(type) {
	case protocol.SuccessResponse:
		assert.Equal(t, "Server: [host=alpha]: ", r.Header)
		return r.Message
	case protocol.FailResponse:
		assert.Equal(t, "Server: [host=alpha]: ", r.Header)
		return r.Message
	}
	return ""
}

func TestPing(t *testing.T) {
	f := newFixture(t, scriptApp)

	msg := message(t, f.roundTrip(t, protocol.PingRequest{}), protocol.KindSuccess)
	st, err := protocol.DecodeStatus(msg)
	require.NoError(t, err)

	assert.Equal(t, "alpha", st.HostName)
	assert.Len(t, st.ConfigDigest, 64)
	require.Len(t, st.Nodes, 2)
	assert.Equal(t, 1, st.Nodes[0].NodeID)
	assert.Equal(t, "application-starter-1", st.Nodes[0].Services[0].ServiceName)
	assert.True(t, st.Nodes[0].Services[0].Alive)
	assert.Empty(t, st.Nodes[0].Services[0].Jobs)
}

func TestUnknownRequestKind(t *testing.T) {
	f := newFixture(t, scriptApp)

	c, err := protocol.Dial(context.Background(), nil, f.addr, time.Second)
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.WriteInt32(0x99))
	require.NoError(t, c.Flush())

	resp, err := protocol.ReadResponse(c)
	require.NoError(t, err)
	assert.Equal(t, "invalid request. (0x99)", message(t, resp, protocol.KindFail))
}

func TestServiceLifecycle(t *testing.T) {
	f := newFixture(t, scriptApp)

	msg := message(t, f.roundTrip(t, protocol.ServiceWatchRequest{NodeID: 1}), protocol.KindFail)
	assert.Equal(t, "service application-starter-1 does not have any job to run.", msg)

	msg = message(t, f.roundTrip(t, protocol.ServiceStopRequest{NodeID: 1}), protocol.KindSuccess)
	assert.Equal(t, "application is not running.", msg)

	msg = message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 1}), protocol.KindSuccess)
	assert.True(t, strings.HasPrefix(msg, "starting application (node = 1) ..."), msg)
	assert.Contains(t, msg, filepath.Join(f.base, "node_1"))

	var output []string
	require.Eventually(t, func() bool {
		resp := f.roundTrip(t, protocol.ServiceWatchRequest{NodeID: 1, TailLines: 0})
		if resp.Kind() != protocol.KindSuccess {
			return false
		}
		lines := strings.Split(resp.(protocol.SuccessResponse).Message, "\n")
		if lines[0] != "        [node = 1]" {
			return false
		}
		output = append(output, lines[1:]...)
		return len(output) >= 2
	}, waitFor, pollIn)
	assert.Equal(t, []string{"started", "node-" + filepath.Join(f.base, "node_1")}, output)

	msg = message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 1}), protocol.KindSuccess)
	assert.Equal(t, "application is already running.", msg)

	msg = message(t, f.roundTrip(t, protocol.ServiceStopRequest{NodeID: 1}), protocol.KindSuccess)
	assert.Equal(t, "stopping application (node = 1) ...", msg)

	require.Eventually(t, func() bool {
		return f.roundTrip(t, protocol.ServiceWatchRequest{NodeID: 1}).Kind() == protocol.KindFail
	}, waitFor, pollIn)

	require.Eventually(t, func() bool {
		matches, _ := filepath.Glob(filepath.Join(f.base, "node_1", "application.log.*"))
		return len(matches) == 1
	}, waitFor, pollIn)
}

func TestServiceWatchTail(t *testing.T) {
	f := newFixture(t, "    start_command: sh $/application/many.sh\n")
	writeFile(t, filepath.Join(f.base, "application", "many.sh"), "for i in 1 2 3 4 5; do echo line$i; done\nsleep 30\n")

	message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 2}), protocol.KindSuccess)
	require.Eventually(t, func() bool {
		st := f.srv.Status()
		jobs := st.Nodes[1].Services[0].Jobs
		return len(jobs) == 1 && jobs[0].Active
	}, waitFor, pollIn)
	time.Sleep(300 * time.Millisecond)

	msg := message(t, f.roundTrip(t, protocol.ServiceWatchRequest{NodeID: 2, TailLines: 2}), protocol.KindSuccess)
	assert.Equal(t, "        [node = 2]\nline4\nline5", msg)
}

func TestServiceStartLaunchError(t *testing.T) {
	f := newFixture(t, "    exec: java\n")

	msg := message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 1}), protocol.KindFail)
	assert.True(t, strings.HasPrefix(msg, "Failed to start application because of: "), msg)
}

func TestServiceOnForeignNode(t *testing.T) {
	f := newFixture(t, scriptApp)

	msg := message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 3}), protocol.KindFail)
	assert.Equal(t, "application starter service is corrupted.", msg)
	msg = message(t, f.roundTrip(t, protocol.ServiceWatchRequest{NodeID: 3}), protocol.KindFail)
	assert.Equal(t, "service application-starter-3 is corrupted.", msg)
}

func putTree(t *testing.T, f *fixture, src, dest string, extra int64) protocol.Response {
	t.Helper()
	var body bytes.Buffer
	require.NoError(t, transfer.Pack(src, &body, transfer.PackOptions{}))

	nc, err := net.DialTimeout("tcp", f.addr, time.Second)
	require.NoError(t, err)
	c := protocol.NewConn(nc)
	defer c.Close()
	n := int64(body.Len())
	require.NoError(t, protocol.WriteRequest(c, protocol.FilePutRequest{DestPath: dest, Length: n + extra}))
	_, err = c.Writer().Write(body.Bytes())
	require.NoError(t, err)
	require.NoError(t, c.Flush())
	if extra > 0 {
		require.NoError(t, nc.(*net.TCPConn).CloseWrite())
	}
	resp, err := protocol.ReadResponse(c)
	require.NoError(t, err)
	return resp
}

func TestFilePutGetDelete(t *testing.T) {
	f := newFixture(t, scriptApp)

	src := filepath.Join(t.TempDir(), "bundle")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")
	writeFile(t, filepath.Join(src, "sub", "b.txt"), "beta")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))

	dest := filepath.Join(f.base, "upload")
	msg := message(t, putTree(t, f, src, dest, 0), protocol.KindSuccess)
	assert.True(t, strings.HasPrefix(msg, "successfully received file "+dest+". ("), msg)

	got, err := os.ReadFile(filepath.Join(dest, "bundle", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "beta", string(got))
	info, err := os.Stat(filepath.Join(dest, "bundle", "empty"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// FILE_GET streams the tree back.
	c, err := protocol.Dial(context.Background(), nil, f.addr, time.Second)
	require.NoError(t, err)
	require.NoError(t, protocol.WriteRequest(c, protocol.FileGetRequest{SrcPath: filepath.Join(dest, "bundle")}))
	resp, err := protocol.ReadResponse(c)
	require.NoError(t, err)
	fr, ok := resp.(protocol.FileResponse)
	require.True(t, ok, "expected FILE, got %#v", resp)
	var archive bytes.Buffer
	_, err = transfer.ReceiveBody(c.Reader(), fr.Length, &archive)
	require.NoError(t, err)
	_ = c.Close()

	local := t.TempDir()
	require.NoError(t, transfer.Unpack(&archive, local))
	got, err = os.ReadFile(filepath.Join(local, "bundle", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(got))

	msg = message(t, f.roundTrip(t, protocol.FileDeleteRequest{Path: dest}), protocol.KindSuccess)
	assert.Equal(t, "successfully deleted "+dest+".", msg)
	_, err = os.Stat(dest)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Temp archives never outlive a request.
	leftovers, _ := filepath.Glob(filepath.Join(f.srv.Config().Server.TempPath, "*"+transfer.ArchiveExt))
	assert.Empty(t, leftovers)
}

func TestFilePutShortBody(t *testing.T) {
	f := newFixture(t, scriptApp)

	src := filepath.Join(t.TempDir(), "bundle")
	writeFile(t, filepath.Join(src, "a.txt"), "alpha")

	dest := filepath.Join(f.base, "upload")
	msg := message(t, putTree(t, f, src, dest, 10), protocol.KindFail)
	assert.True(t, strings.HasPrefix(msg, "failed to receive file "+dest+". ("), msg)
	assert.Contains(t, msg, "out of")

	_, err := os.Stat(dest)
	assert.True(t, errors.Is(err, os.ErrNotExist), "partial upload must not be expanded")
}

func TestFileGetMissing(t *testing.T) {
	f := newFixture(t, scriptApp)

	missing := filepath.Join(f.base, "nope")
	msg := message(t, f.roundTrip(t, protocol.FileGetRequest{SrcPath: missing}), protocol.KindFail)
	assert.Equal(t, "failed to send "+missing+". (file does not exist)", msg)
}

func TestReconfig(t *testing.T) {
	f := newFixture(t, scriptApp)

	writeFile(t, filepath.Join(f.cfgDir, "host.list"), "alpha, 1, 2, 4\nbeta, 3\n")
	msg := message(t, f.roundTrip(t, protocol.ReconfigRequest{ConfigPath: f.cfgDir}), protocol.KindSuccess)
	assert.Equal(t, "reconfiguring server with "+f.cfgDir+" ...", msg)

	require.Eventually(t, func() bool {
		st, err := protocol.DecodeStatus(message(t, f.roundTrip(t, protocol.PingRequest{}), protocol.KindSuccess))
		return err == nil && len(st.Nodes) == 3 && st.Nodes[2].NodeID == 4 && st.Nodes[2].Services[0].Alive
	}, waitFor, pollIn)

	_, err := os.Stat(filepath.Join(f.base, "node_4", "config", "app.conf"))
	assert.NoError(t, err)

	// A broken configuration leaves the running generation in place.
	message(t, f.roundTrip(t, protocol.ReconfigRequest{ConfigPath: filepath.Join(f.base, "missing")}), protocol.KindSuccess)
	time.Sleep(100 * time.Millisecond)
	st, err := protocol.DecodeStatus(message(t, f.roundTrip(t, protocol.PingRequest{}), protocol.KindSuccess))
	require.NoError(t, err)
	assert.Len(t, st.Nodes, 3)
}

func TestStop(t *testing.T) {
	f := newFixture(t, scriptApp)

	message(t, f.roundTrip(t, protocol.ServiceStartRequest{NodeID: 1}), protocol.KindSuccess)
	msg := message(t, f.roundTrip(t, protocol.StopRequest{}), protocol.KindSuccess)
	assert.Equal(t, "stopping server ...", msg)

	select {
	case err := <-f.served:
		assert.ErrorIs(t, err, ErrStopped)
		f.served <- err
	case <-time.After(waitFor):
		t.Fatal("Serve did not return after STOP")
	}

	_, err := protocol.Dial(context.Background(), nil, f.addr, 200*time.Millisecond)
	assert.True(t, protocol.IsConnectionError(err))
}

func TestNewRejectsUnknownHost(t *testing.T) {
	base := t.TempDir()
	cfgDir := filepath.Join(base, "config")
	writeFile(t, filepath.Join(cfgDir, "nagini.yaml"), serverYAML(base, scriptApp))
	writeFile(t, filepath.Join(cfgDir, "host.list"), "alpha, 1\n")

	_, err := New(cfgDir, "gamma")
	assert.Error(t, err)
}

func TestFitMessageKeepsTail(t *testing.T) {
	long := strings.Repeat("é", protocol.MaxStringLen) + "END"
	got := fitMessage(long)
	assert.LessOrEqual(t, len(got), protocol.MaxStringLen)
	assert.True(t, strings.HasSuffix(got, "END"))
	assert.True(t, strings.HasPrefix(got, "é"))
}
