package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattjoyce/nagini/internal/protocol"
)

// DefaultTick is the supervisory loop period.
const DefaultTick = time.Second

// Run describes one finished job execution.
type Run struct {
	NodeID     int
	JobName    string
	Argv       []string
	StartedAt  time.Time
	EndedAt    time.Time
	ExitCode   int
	ArchiveLog string
}

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run Run) error
}

// Options configures a Service.
type Options struct {
	Capacity     int
	Tick         time.Duration
	WatchEnabled bool
	Recorder     Recorder
	Logger       *slog.Logger
}

// Service supervises the jobs of one node. All queue state is owned by the
// loop goroutine; exported methods reach it through the mailbox.
type Service struct {
	nodeID  int
	name    string
	logPath string
	opts    Options
	logger  *slog.Logger

	mailbox   chan func()
	stopped   chan struct{}
	startOnce sync.Once
	started   chan struct{}

	// loop-owned
	queue    []*Job
	draining *Job
	exiting  bool
}

// ServiceName is the name under which a node's service is reported.
func ServiceName(nodeID int) string {
	return "application-starter-" + strconv.Itoa(nodeID)
}

// NewService creates the supervisor of node nodeID writing to logPath.
// The loop does not run until Start.
func NewService(nodeID int, logPath string, opts Options) *Service {
	if opts.Capacity <= 0 {
		opts.Capacity = 1
	}
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		nodeID:  nodeID,
		name:    ServiceName(nodeID),
		logPath: logPath,
		opts:    opts,
		logger:  logger.With("component", "supervisor", "node_id", nodeID),
		mailbox: make(chan func()),
		stopped: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (s *Service) Name() string    { return s.name }
func (s *Service) NodeID() int     { return s.nodeID }
func (s *Service) LogPath() string { return s.logPath }

// Start launches the supervisory loop. It runs until Terminate or ctx ends.
func (s *Service) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		close(s.started)
		go s.run(ctx)
	})
}

// Alive reports whether the supervisory loop is running.
func (s *Service) Alive() bool {
	select {
	case <-s.started:
	default:
		return false
	}
	select {
	case <-s.stopped:
		return false
	default:
		return true
	}
}

// call runs fn on the loop goroutine and waits for it. It returns false when
// the loop is not running.
func (s *Service) call(fn func()) bool {
	if !s.Alive() {
		return false
	}
	done := make(chan struct{})
	select {
	case s.mailbox <- func() { fn(); close(done) }:
		<-done
		return true
	case <-s.stopped:
		return false
	}
}

// AddJob enqueues an unstarted job. It returns false when the queue is full
// or the service is not running.
func (s *Service) AddJob(name string, argv []string, dir string) bool {
	var added bool
	s.call(func() {
		if len(s.queue) >= s.opts.Capacity {
			return
		}
		s.queue = append(s.queue, NewJob(name, argv, dir, s.logPath, s.opts.WatchEnabled, s.logger))
		added = true
		s.logger.Info("job queued", "job", name)
	})
	return added
}

// RemoveAllJobs kills the running job and clears the queue.
func (s *Service) RemoveAllJobs() {
	s.call(s.removeAll)
}

// IsRunningJob reports whether the head of the queue is alive.
func (s *Service) IsRunningJob() bool {
	var running bool
	s.call(func() {
		running = len(s.queue) > 0 && s.queue[0].Alive()
	})
	return running
}

// JobCount returns the queue length.
func (s *Service) JobCount() int {
	var n int
	s.call(func() { n = len(s.queue) })
	return n
}

// ReadOutput drains the captured output of the head job.
func (s *Service) ReadOutput() []string {
	var out []string
	s.call(func() {
		if len(s.queue) > 0 {
			out = s.queue[0].ReadOutput()
		}
	})
	return out
}

// Status snapshots the service for a status report.
func (s *Service) Status() protocol.ServiceStatus {
	st := protocol.ServiceStatus{ServiceName: s.name, Jobs: []protocol.JobStatus{}}
	st.Alive = s.call(func() {
		for _, j := range s.queue {
			st.Jobs = append(st.Jobs, protocol.JobStatus{JobName: j.Name(), Active: j.Alive()})
		}
	})
	return st
}

// Terminate kills the running job, stops the loop and waits for it to exit.
func (s *Service) Terminate() {
	s.call(func() {
		s.removeAll()
		s.exiting = true
	})
	select {
	case <-s.started:
		<-s.stopped
	default:
	}
}

// Stopped is closed when the loop has exited.
func (s *Service) Stopped() <-chan struct{} { return s.stopped }

func (s *Service) run(ctx context.Context) {
	defer close(s.stopped)
	s.logger.Info("service started", "service", s.name)
	defer s.logger.Info("service stopped", "service", s.name)

	ticker := time.NewTicker(s.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case fn := <-s.mailbox:
			fn()
		case <-ticker.C:
			s.advance()
		case <-s.headDone():
			s.finish(s.queue[0])
		case <-s.drainDone():
			s.finish(s.draining)
		case <-ctx.Done():
			s.removeAll()
			s.exiting = true
		}
		if s.exiting {
			if s.draining != nil {
				<-s.draining.Done()
				s.finish(s.draining)
			}
			return
		}
	}
}

func (s *Service) headDone() <-chan struct{} {
	if len(s.queue) == 0 || !s.queue[0].Started() {
		return nil
	}
	return s.queue[0].Done()
}

func (s *Service) drainDone() <-chan struct{} {
	if s.draining == nil {
		return nil
	}
	return s.draining.Done()
}

// advance starts the head job unless a killed job is still draining.
func (s *Service) advance() {
	if s.draining != nil || len(s.queue) == 0 {
		return
	}
	head := s.queue[0]
	if head.Started() {
		return
	}
	if err := head.Start(); err != nil {
		s.logger.Error("failed to start job", "job", head.Name(), "error", err)
	}
}

// removeAll kills the running head, keeps it as draining until its output is
// flushed, and drops the rest of the queue.
func (s *Service) removeAll() {
	if len(s.queue) > 0 {
		head := s.queue[0]
		if head.Started() {
			head.Kill()
			s.draining = head
		}
	}
	if len(s.queue) > 0 {
		s.logger.Info("jobs removed", "count", len(s.queue))
	}
	s.queue = nil
}

// finish dequeues a completed job and archives its log.
func (s *Service) finish(j *Job) {
	if s.draining == j {
		s.draining = nil
	}
	if len(s.queue) > 0 && s.queue[0] == j {
		s.queue = s.queue[1:]
	}

	start, end := j.Times()
	archived := fmt.Sprintf("%s.%d.%d", s.logPath, start.UnixMilli(), end.UnixMilli())
	if err := os.Rename(s.logPath, archived); err != nil {
		s.logger.Warn("failed to archive log", "log", s.logPath, "error", err)
		archived = ""
	}

	if s.opts.Recorder == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	run := Run{
		NodeID:     s.nodeID,
		JobName:    j.Name(),
		Argv:       j.Argv(),
		StartedAt:  start,
		EndedAt:    end,
		ExitCode:   j.ExitCode(),
		ArchiveLog: archived,
	}
	if err := s.opts.Recorder.RecordRun(ctx, run); err != nil {
		s.logger.Warn("failed to record run", "job", j.Name(), "error", err)
	}
}
