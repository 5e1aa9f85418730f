// Package fleet drives a fleet of nagini agents: single-host primitives that
// perform one request/response exchange, and fleet-wide operations that fan a
// primitive out over every host or node while isolating per-target failures.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/mattjoyce/nagini/internal/config"
	"github.com/mattjoyce/nagini/internal/log"
	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/transfer"
)

// Client talks to the agents listed in a configuration.
type Client struct {
	cfg     *config.Config
	layout  config.Layout
	dialer  protocol.Dialer
	shell   RemoteShell
	out     io.Writer
	logger  *slog.Logger
	limiter *rate.Limiter
	resolve func(host string) string
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the TCP dialer.
func WithDialer(d protocol.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithRemoteShell replaces the shell used to launch agents.
func WithRemoteShell(s RemoteShell) Option {
	return func(c *Client) { c.shell = s }
}

// WithOutput sets where agent replies are printed. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Client) { c.out = w }
}

// WithResolver maps a host name to the address dialed for it.
func WithResolver(fn func(host string) string) Option {
	return func(c *Client) { c.resolve = fn }
}

// New builds a client for cfg.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg,
		layout: cfg.ServerLayout(),
		dialer: &net.Dialer{},
		out:    os.Stdout,
		logger: log.WithComponent("fleet"),
	}
	c.shell = &ExecShell{Program: cfg.Client.RemoteShell, Dir: cfg.Client.BasePath}
	if r := cfg.Client.Fleet.ConnectRate; r > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(r), 1)
	}
	c.resolve = func(host string) string {
		return net.JoinHostPort(host, strconv.Itoa(cfg.Server.Port))
	}
	for _, opt := range opts {
		opt(c)
	}
	c.out = &syncWriter{w: c.out}
	return c
}

// syncWriter serializes output of concurrent fleet targets.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// Config returns the client configuration.
func (c *Client) Config() *config.Config { return c.cfg }

// Layout is the agent-side directory layout.
func (c *Client) Layout() config.Layout { return c.layout }

func (c *Client) dial(ctx context.Context, host string) (*protocol.Conn, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	conn, err := protocol.Dial(ctx, c.dialer, c.resolve(host), c.cfg.Client.Fleet.ConnectTimeout)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// exchange performs one request/response round trip on a fresh connection.
func (c *Client) exchange(ctx context.Context, host string, req protocol.Request) (protocol.Response, error) {
	conn, err := c.dial(ctx, host)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := protocol.WriteRequest(conn, req); err != nil {
		return nil, fmt.Errorf("send %s to %s: %w", req.Kind(), host, err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return nil, fmt.Errorf("read reply from %s: %w", host, err)
	}
	return resp, nil
}

// report prints a SUCCESS or FAIL reply and converts FAIL into a RemoteError.
func (c *Client) report(host string, resp protocol.Response) error {
	switch r := resp.(type) {
	case protocol.SuccessResponse:
		fmt.Fprintln(c.out, r.Header+r.Message)
		return nil
	case protocol.FailResponse:
		fmt.Fprintln(c.out, r.Header+r.Message)
		return &RemoteError{Host: host, Header: r.Header, Message: r.Message}
	default:
		return unexpected(resp, protocol.KindSuccess, protocol.KindFail)
	}
}

func unexpected(resp protocol.Response, want ...protocol.ResponseKind) error {
	return &protocol.UnexpectedResponseError{Got: resp.Kind(), Want: want}
}

func (c *Client) call(ctx context.Context, host string, req protocol.Request) error {
	resp, err := c.exchange(ctx, host, req)
	if err != nil {
		return err
	}
	return c.report(host, resp)
}

// Ping asks host for its status.
func (c *Client) Ping(ctx context.Context, host string) (protocol.ServerStatus, error) {
	resp, err := c.exchange(ctx, host, protocol.PingRequest{})
	if err != nil {
		return protocol.ServerStatus{}, err
	}
	switch r := resp.(type) {
	case protocol.SuccessResponse:
		st, err := protocol.DecodeStatus(r.Message)
		if err != nil {
			return protocol.ServerStatus{}, fmt.Errorf("decode status of %s: %w", host, err)
		}
		return st, nil
	case protocol.FailResponse:
		return protocol.ServerStatus{}, &RemoteError{Host: host, Header: r.Header, Message: r.Message}
	default:
		return protocol.ServerStatus{}, unexpected(resp, protocol.KindSuccess)
	}
}

// Stop shuts the agent on host down.
func (c *Client) Stop(ctx context.Context, host string) error {
	fmt.Fprintf(c.out, "stopping %s ...\n", host)
	return c.call(ctx, host, protocol.StopRequest{})
}

// StartCommand is the command line the remote shell runs on host to launch its agent.
func (c *Client) StartCommand(host string) string {
	return fmt.Sprintf("sudo -u %s -sn bash %s %s %s",
		c.cfg.Server.User, c.cfg.Server.StartScript, c.layout.ConfigPath(), host)
}

// Start launches the agent on host through the remote shell.
func (c *Client) Start(ctx context.Context, host string) error {
	fmt.Fprintf(c.out, "starting %s ...\n", host)
	if err := c.shell.Run(ctx, host, c.StartCommand(host), c.out); err != nil {
		return fmt.Errorf("start agent on %s: %w", host, err)
	}
	return nil
}

// Reconfig makes host reload its configuration from configPath.
func (c *Client) Reconfig(ctx context.Context, host, configPath string) error {
	fmt.Fprintf(c.out, "reloading config on %s ...\n", host)
	return c.call(ctx, host, protocol.ReconfigRequest{ConfigPath: configPath})
}

// Put copies localPath (file or directory) under remotePath on host.
func (c *Client) Put(ctx context.Context, host, localPath, remotePath string) error {
	a, err := c.pack(localPath, transfer.PackOptions{})
	if err != nil {
		return err
	}
	defer a.remove()
	return c.putArchive(ctx, host, a, remotePath)
}

// archive is a packed tree on local disk, sent to any number of hosts.
type archive struct {
	path string
	size int64
}

func (a archive) remove() { _ = os.Remove(a.path) }

func (c *Client) pack(localPath string, opts transfer.PackOptions) (archive, error) {
	localPath = config.ExpandHome(localPath)
	if _, err := os.Stat(localPath); err != nil {
		return archive{}, fmt.Errorf("cannot find %s: %w", localPath, err)
	}
	path, size, err := transfer.PackFile(localPath, c.cfg.Client.TempPath, opts)
	if err != nil {
		return archive{}, err
	}
	c.logger.Debug("packed", "src", localPath, "archive", path, "bytes", size)
	return archive{path: path, size: size}, nil
}

func (c *Client) putArchive(ctx context.Context, host string, a archive, remotePath string) error {
	f, err := os.Open(a.path)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	conn, err := c.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintf(c.out, "putting %s to %s:%s ... (%d bytes)\n", filepath.Base(a.path), host, remotePath, a.size)
	if err := protocol.WriteRequest(conn, protocol.FilePutRequest{DestPath: remotePath, Length: a.size}); err != nil {
		return fmt.Errorf("send put to %s: %w", host, err)
	}
	if _, err := transfer.SendBody(conn.Writer(), f, a.size); err != nil {
		return fmt.Errorf("send body to %s: %w", host, err)
	}
	if err := conn.Flush(); err != nil {
		return fmt.Errorf("send body to %s: %w", host, err)
	}

	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return fmt.Errorf("read reply from %s: %w", host, err)
	}
	return c.report(host, resp)
}

// Get copies remotePath from host into the local directory localDir.
func (c *Client) Get(ctx context.Context, host, remotePath, localDir string) error {
	localDir = config.ExpandHome(localDir)
	conn, err := c.dial(ctx, host)
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Fprintf(c.out, "getting %s from %s ...\n", remotePath, host)
	if err := protocol.WriteRequest(conn, protocol.FileGetRequest{SrcPath: remotePath}); err != nil {
		return fmt.Errorf("send get to %s: %w", host, err)
	}
	resp, err := protocol.ReadResponse(conn)
	if err != nil {
		return fmt.Errorf("read reply from %s: %w", host, err)
	}
	fr, ok := resp.(protocol.FileResponse)
	if !ok {
		if err := c.report(host, resp); err != nil {
			return err
		}
		return unexpected(resp, protocol.KindFile)
	}

	if err := os.MkdirAll(c.cfg.Client.TempPath, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	tmp := transfer.TempArchivePath(c.cfg.Client.TempPath)
	defer os.Remove(tmp)
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	done, recvErr := transfer.ReceiveBody(conn.Reader(), fr.Length, f)
	if err := errors.Join(recvErr, f.Close()); err != nil {
		return fmt.Errorf("receive %s from %s: %w", remotePath, host, err)
	}
	fmt.Fprintf(c.out, "successfully received file. (%d bytes)\n", done)

	if err := transfer.UnpackFile(tmp, localDir); err != nil {
		return err
	}
	return nil
}

// Delete removes remotePath on host.
func (c *Client) Delete(ctx context.Context, host, remotePath string) error {
	fmt.Fprintf(c.out, "deleting %s on %s ...\n", remotePath, host)
	return c.call(ctx, host, protocol.FileDeleteRequest{Path: remotePath})
}

func (c *Client) hostOf(nodeID int) (string, error) {
	host, ok := c.cfg.Hosts.Host(nodeID)
	if !ok {
		return "", fmt.Errorf("%w: node %d is not assigned to any host", config.ErrInvalid, nodeID)
	}
	return host, nil
}

// StartNode starts the application of one node.
func (c *Client) StartNode(ctx context.Context, nodeID int) error {
	host, err := c.hostOf(nodeID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "starting application node %d on %s ...\n", nodeID, host)
	return c.call(ctx, host, protocol.ServiceStartRequest{NodeID: int32(nodeID)})
}

// StopNode stops the application of one node.
func (c *Client) StopNode(ctx context.Context, nodeID int) error {
	host, err := c.hostOf(nodeID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "stopping application node %d on %s ...\n", nodeID, host)
	return c.call(ctx, host, protocol.ServiceStopRequest{NodeID: int32(nodeID)})
}

// WatchOnce prints the recent output of one node and reports whether its
// application is running, which is the case iff the agent replied SUCCESS.
func (c *Client) WatchOnce(ctx context.Context, nodeID, tail int) (bool, error) {
	host, err := c.hostOf(nodeID)
	if err != nil {
		return false, err
	}
	resp, err := c.exchange(ctx, host, protocol.ServiceWatchRequest{NodeID: int32(nodeID), TailLines: int32(tail)})
	if err != nil {
		return false, err
	}
	switch r := resp.(type) {
	case protocol.SuccessResponse:
		fmt.Fprintln(c.out, r.Header+r.Message)
		return true, nil
	case protocol.FailResponse:
		fmt.Fprintln(c.out, r.Header+r.Message)
		return false, nil
	default:
		return false, unexpected(resp, protocol.KindSuccess, protocol.KindFail)
	}
}

// NodePath resolves a path relative to a node directory on the agent.
func (c *Client) NodePath(nodeID int, rel string) string {
	return filepath.Join(c.layout.NodePath(nodeID), strings.TrimPrefix(rel, "/"))
}
