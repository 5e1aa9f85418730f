package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/nagini/internal/config"
	"github.com/mattjoyce/nagini/internal/log"
	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/supervisor"
)

// ErrStopped is returned by Serve after a STOP request.
var ErrStopped = errors.New("server stopped")

// Server is the per-host agent: it accepts one request per connection and
// supervises the nodes assigned to its host.
type Server struct {
	host     string
	logger   *slog.Logger
	tick     time.Duration
	recorder supervisor.Recorder

	// gate quiesces service and status handlers while RECONFIG swaps snapshots.
	gate sync.RWMutex
	snap atomic.Pointer[snapshot]

	lnMu sync.Mutex
	ln   net.Listener

	runCtx   context.Context
	stopOnce sync.Once
	stopCh   chan struct{}
	conns    sync.WaitGroup
}

// snapshot is an immutable view of one configuration generation.
type snapshot struct {
	cfg      *config.Config
	layout   config.Layout
	digest   string
	nodeIDs  []int
	services map[int]*supervisor.Service
}

// Option customizes a Server.
type Option func(*Server)

// WithTick sets the supervisory loop period of every node service.
func WithTick(d time.Duration) Option {
	return func(s *Server) { s.tick = d }
}

// WithRecorder stores finished runs.
func WithRecorder(r supervisor.Recorder) Option {
	return func(s *Server) { s.recorder = r }
}

// New loads the configuration at configPath, prepares the node directories of
// host and binds the configured port.
func New(configPath, host string, opts ...Option) (*Server, error) {
	s := &Server{
		host:   host,
		logger: log.WithComponent("server").With("host", host),
		tick:   supervisor.DefaultTick,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	snap, err := s.newSnapshot(cfg)
	if err != nil {
		return nil, err
	}
	s.generateNodeConfigs(snap)

	ln, err := listen(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	s.ln = ln
	s.snap.Store(snap)
	return s, nil
}

func listen(port int) (net.Listener, error) {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return ln, nil
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener().Addr()
}

func (s *Server) listener() net.Listener {
	s.lnMu.Lock()
	defer s.lnMu.Unlock()
	return s.ln
}

// Config returns the active configuration.
func (s *Server) Config() *config.Config {
	return s.snap.Load().cfg
}

func (s *Server) newSnapshot(cfg *config.Config) (*snapshot, error) {
	nodes, ok := nodesOf(cfg, s.host)
	if !ok {
		return nil, fmt.Errorf("%w: host %q is not listed in %s", config.ErrInvalid, s.host, config.HostListName)
	}

	snap := &snapshot{
		cfg:      cfg,
		layout:   cfg.ServerLayout(),
		nodeIDs:  nodes,
		services: make(map[int]*supervisor.Service, len(nodes)),
	}
	if digest, err := config.Digest(cfg.Dir); err == nil {
		snap.digest = digest
	} else {
		s.logger.Warn("failed to digest config", "dir", cfg.Dir, "error", err)
	}

	for _, id := range nodes {
		snap.services[id] = supervisor.NewService(id, snap.layout.NodeLogPath(id), supervisor.Options{
			Capacity:     1,
			Tick:         s.tick,
			WatchEnabled: cfg.Server.WatchEnabled,
			Recorder:     s.recorder,
			Logger:       s.logger,
		})
	}
	return snap, nil
}

func nodesOf(cfg *config.Config, host string) ([]int, bool) {
	for _, h := range cfg.Hosts.Hosts() {
		if h == host {
			return cfg.Hosts.Nodes(host), true
		}
	}
	return nil, false
}

func (s *Server) generateNodeConfigs(snap *snapshot) {
	for _, id := range snap.nodeIDs {
		if err := GenerateNodeConfig(snap.layout, id); err != nil {
			s.logger.Error("failed to generate node config", "node_id", id, "error", err)
		}
	}
}

func (s *Server) startServices(snap *snapshot) {
	for _, id := range snap.nodeIDs {
		snap.services[id].Start(s.runCtx)
	}
}

// terminateServices stops every service of snap and waits for all of them.
func terminateServices(snap *snapshot) {
	var wg sync.WaitGroup
	for _, svc := range snap.services {
		wg.Add(1)
		go func(svc *supervisor.Service) {
			defer wg.Done()
			svc.Terminate()
		}(svc)
	}
	wg.Wait()
}

// Serve starts the node services and accepts connections until STOP or ctx
// cancellation. It returns ErrStopped after STOP, or ctx.Err().
func (s *Server) Serve(ctx context.Context) error {
	s.runCtx = ctx
	snap := s.snap.Load()
	s.startServices(snap)
	s.logger.Info("server started", "addr", s.Addr().String(), "nodes", snap.nodeIDs)

	go func() {
		select {
		case <-ctx.Done():
			s.stop()
		case <-s.stopCh:
		}
	}()

	for {
		ln := s.listener()
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.stopCh:
				s.conns.Wait()
				s.logger.Info("server stopped")
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrStopped
			default:
			}
			if errors.Is(err, net.ErrClosed) && s.listener() != ln {
				continue
			}
			s.logger.Error("accept failed", "error", err)
			time.Sleep(50 * time.Millisecond)
			continue
		}

		s.conns.Add(1)
		go s.handleConn(nc)
	}
}

// stop terminates every service and closes the listener. Safe to call twice.
func (s *Server) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.gate.Lock()
		terminateServices(s.snap.Load())
		s.gate.Unlock()
		_ = s.listener().Close()
	})
}

// reconfigure loads configPath and swaps in a fresh set of services. When the
// new configuration is invalid the running generation is kept.
func (s *Server) reconfigure(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}
	next, err := s.newSnapshot(cfg)
	if err != nil {
		return fmt.Errorf("reload config: %w", err)
	}

	s.gate.Lock()
	defer s.gate.Unlock()
	select {
	case <-s.stopCh:
		return ErrStopped
	default:
	}

	prev := s.snap.Load()
	terminateServices(prev)
	s.generateNodeConfigs(next)
	s.snap.Store(next)
	s.startServices(next)
	s.logger.Info("configuration reloaded", "config", cfg.Dir, "nodes", next.nodeIDs)

	if cfg.Server.Port != prev.cfg.Server.Port {
		if err := s.rebind(cfg.Server.Port); err != nil {
			return err
		}
	}
	return nil
}

// rebind moves the listener to port; on failure the old listener stays.
func (s *Server) rebind(port int) error {
	ln, err := listen(port)
	if err != nil {
		return fmt.Errorf("rebind: %w", err)
	}
	s.lnMu.Lock()
	old := s.ln
	s.ln = ln
	s.lnMu.Unlock()
	_ = old.Close()
	s.logger.Info("listener rebound", "addr", ln.Addr().String())
	return nil
}

// Status builds the status tree of the current generation.
func (s *Server) Status() protocol.ServerStatus {
	s.gate.RLock()
	defer s.gate.RUnlock()
	return s.status(s.snap.Load())
}

func (s *Server) status(snap *snapshot) protocol.ServerStatus {
	st := protocol.ServerStatus{
		HostName:     s.host,
		ConfigDigest: snap.digest,
		Nodes:        make([]protocol.NodeStatus, 0, len(snap.nodeIDs)),
	}
	for _, id := range snap.nodeIDs {
		st.Nodes = append(st.Nodes, protocol.NodeStatus{
			NodeID:   id,
			Services: []protocol.ServiceStatus{snap.services[id].Status()},
		})
	}
	return st
}

func newConnID() string {
	return uuid.NewString()[:8]
}
