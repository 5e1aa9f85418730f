package fleet

import (
	"context"
	"fmt"
	"io"
	"os/exec"
)

//go:generate mockgen -destination=mocks/mock_shell.go -package=mocks github.com/mattjoyce/nagini/internal/fleet RemoteShell

// RemoteShell runs a command line on a remote host.
type RemoteShell interface {
	Run(ctx context.Context, host, command string, out io.Writer) error
}

// ExecShell runs `<Program> <host> <command>` locally, ssh style.
type ExecShell struct {
	Program string
	Dir     string
}

func (s *ExecShell) Run(ctx context.Context, host, command string, out io.Writer) error {
	program := s.Program
	if program == "" {
		program = "ssh"
	}
	cmd := exec.CommandContext(ctx, program, host, command)
	cmd.Dir = s.Dir
	cmd.Stdout = out
	cmd.Stderr = out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", program, host, err)
	}
	return nil
}
