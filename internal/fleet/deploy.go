package fleet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/google/uuid"

	"github.com/mattjoyce/nagini/internal/transfer"
)

// ErrNoBuildOutput means a build output pattern matched nothing.
var ErrNoBuildOutput = errors.New("build output pattern matched nothing")

// DeployApp fetches and builds the application in a scratch directory, gathers
// the build outputs into application/ and puts it under every host's base path.
func (c *Client) DeployApp(ctx context.Context) (*Report, error) {
	app := c.cfg.Client.App
	scratch := filepath.Join(c.cfg.Client.TempPath, "deploy-"+uuid.NewString())
	defer os.RemoveAll(scratch)

	work := filepath.Join(scratch, "work")
	if err := os.MkdirAll(work, 0o755); err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	for _, command := range []string{app.FetchCommand, app.BuildCommand} {
		if err := c.runLocal(ctx, work, command); err != nil {
			return nil, err
		}
	}

	staged := filepath.Join(scratch, "application")
	if err := stageOutputs(work, staged, app.BuildOutputs); err != nil {
		return nil, err
	}
	return c.PutAll(ctx, staged, c.layout.Base)
}

func (c *Client) runLocal(ctx context.Context, dir, command string) error {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		return nil
	}
	fmt.Fprintf(c.out, "running %s ...\n", command)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Stdout = c.out
	cmd.Stderr = c.out
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run %q: %w", command, err)
	}
	return nil
}

// stageOutputs copies every path under work matching one of patterns to the
// same relative path under staged. Each pattern must match at least once.
func stageOutputs(work, staged string, patterns []string) error {
	if err := os.MkdirAll(staged, 0o755); err != nil {
		return fmt.Errorf("create staging dir: %w", err)
	}
	fsys := os.DirFS(work)
	for _, pattern := range patterns {
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return fmt.Errorf("glob %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			return fmt.Errorf("%w: %q", ErrNoBuildOutput, pattern)
		}
		for _, m := range matches {
			dst := filepath.Join(staged, filepath.FromSlash(m))
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return fmt.Errorf("stage %s: %w", m, err)
			}
			if err := transfer.CopyTree(filepath.Join(work, filepath.FromSlash(m)), dst); err != nil {
				return fmt.Errorf("stage %s: %w", m, err)
			}
		}
	}
	return nil
}

// DeployConfig replaces the config directory of every host with localDir and
// reloads it everywhere. No host is reloaded when a put failed; the reload
// stops at the first failing host.
func (c *Client) DeployConfig(ctx context.Context, localDir string) (*Report, error) {
	remote := c.layout.ConfigPath()
	rep := c.DeleteAll(ctx, remote)

	put, err := c.putAll(ctx, localDir, c.layout.Base, transfer.PackOptions{RootName: filepath.Base(remote)})
	if err != nil {
		return rep, err
	}
	rep.Merge(put)
	rep.Op = "deploy config"
	if err := put.Err(); err != nil {
		return rep, fmt.Errorf("put config: %w", err)
	}
	return rep, c.ReconfigAll(ctx, remote)
}

// CleanApp stops every node and removes the application directory on every host.
func (c *Client) CleanApp(ctx context.Context) *Report {
	return c.clean(ctx, "clean app", c.layout.ApplicationPath())
}

// CleanConfig stops every node and removes the config directory on every host.
func (c *Client) CleanConfig(ctx context.Context) *Report {
	return c.clean(ctx, "clean config", c.layout.ConfigPath())
}

func (c *Client) clean(ctx context.Context, op, remote string) *Report {
	rep := c.StopNodes(ctx, c.AllNodes())
	rep.Merge(c.DeleteAll(ctx, remote))
	rep.Op = op
	return rep
}
