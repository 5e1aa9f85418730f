package supervisor

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"
)

// State is the lifecycle of a Job.
type State int

const (
	StateNew State = iota
	StateRunning
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateRunning:
		return "running"
	default:
		return "terminated"
	}
}

// maxLineBytes bounds a single output line; longer lines are split.
const maxLineBytes = 1024 * 1024

// outputDrainTimeout bounds how long output is still collected after the
// process exited. Descendants that inherited the pipes are cut off after it.
var outputDrainTimeout = 2 * time.Second

// Job is one supervised execution of an external process.
type Job struct {
	name    string
	argv    []string
	dir     string
	logPath string
	capture bool
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	cmd       *exec.Cmd
	startedAt time.Time
	endedAt   time.Time
	exitCode  int
	done      chan struct{}

	logMu   sync.Mutex
	logFile *os.File
	pipes   []*os.File

	stdout *outputBuffer
	stderr *outputBuffer
}

// NewJob binds a job to its command, working directory and log file. When
// capture is set, output lines are also kept for ReadOutput.
func NewJob(name string, argv []string, dir, logPath string, capture bool, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{
		name:     name,
		argv:     append([]string(nil), argv...),
		dir:      dir,
		logPath:  logPath,
		capture:  capture,
		logger:   logger.With("job", name),
		exitCode: -1,
		done:     make(chan struct{}),
		stdout:   newOutputBuffer(),
		stderr:   newOutputBuffer(),
	}
}

// Name is the job name written to the log header.
func (j *Job) Name() string { return j.name }

// Argv returns a copy of the command line.
func (j *Job) Argv() []string { return append([]string(nil), j.argv...) }

// LogPath is the live log the job writes to.
func (j *Job) LogPath() string { return j.logPath }

// Done is closed once the process has exited and its output has drained.
func (j *Job) Done() <-chan struct{} { return j.done }

// State returns the current lifecycle state. It is StateTerminated as soon as
// the process has been reaped, even while its output is still draining.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Alive reports whether the process is running.
func (j *Job) Alive() bool { return j.State() == StateRunning }

// Started reports whether Start has been called.
func (j *Job) Started() bool { return j.State() != StateNew }

// Times returns the start and end of the run; end is zero while running.
func (j *Job) Times() (time.Time, time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.startedAt, j.endedAt
}

// ExitCode is -1 until the process has been reaped, or when it never started.
func (j *Job) ExitCode() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.exitCode
}

// Start truncates the live log, writes the header line and spawns the process.
// On error the job is terminated and Done is closed.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateNew {
		return fmt.Errorf("job %s already started", j.name)
	}
	j.startedAt = time.Now()

	if err := j.start(); err != nil {
		j.state = StateTerminated
		j.endedAt = time.Now()
		j.closeLog()
		close(j.done)
		return err
	}
	j.state = StateRunning
	return nil
}

func (j *Job) start() error {
	if len(j.argv) == 0 {
		return errors.New("empty command")
	}
	if err := os.MkdirAll(filepath.Dir(j.logPath), 0o755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(j.logPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	j.logFile = f
	fmt.Fprintf(f, "Starting process %s at %s\n", j.name, j.startedAt.Format(time.UnixDate))

	cmd := exec.Command(j.argv[0], j.argv[1:]...)
	cmd.Dir = j.dir
	setProcessGroup(cmd)

	// Plain os.Pipe ends: Wait returns at process exit, the readers own the
	// read ends.
	outR, outW, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	errR, errW, err := os.Pipe()
	if err != nil {
		closeFiles(outR, outW)
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	cmd.Stdout = outW
	cmd.Stderr = errW
	err = cmd.Start()
	closeFiles(outW, errW)
	if err != nil {
		closeFiles(outR, errR)
		return fmt.Errorf("start process: %w", err)
	}
	j.cmd = cmd
	j.pipes = []*os.File{outR, errR}
	j.logger.Info("process started", "pid", cmd.Process.Pid, "argv", j.argv)

	var readers sync.WaitGroup
	readers.Add(2)
	go j.pump(outR, j.stdout, &readers)
	go j.pump(errR, j.stderr, &readers)
	go j.wait(&readers)
	return nil
}

func closeFiles(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

// pump forwards lines from one pipe to the log and, when capturing, to buf.
// A line longer than maxLineBytes is emitted in maxLineBytes pieces.
func (j *Job) pump(r io.Reader, buf *outputBuffer, wg *sync.WaitGroup) {
	defer wg.Done()
	br := bufio.NewReaderSize(r, 64*1024)
	var line []byte
	split := false
	for {
		chunk, err := br.ReadSlice('\n')
		line = append(line, chunk...)
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if len(line) >= maxLineBytes {
				j.emit(line, buf)
				line = line[:0]
				split = true
			}
			continue
		case err == nil:
			if rest := trimEOL(line); len(rest) > 0 || !split {
				j.emit(rest, buf)
			}
			line = line[:0]
			split = false
			continue
		}
		if len(line) > 0 {
			j.emit(line, buf)
		}
		if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
			j.logger.Warn("output reader stopped", "error", err)
		}
		return
	}
}

func (j *Job) emit(b []byte, buf *outputBuffer) {
	line := string(b)
	j.writeLog(line)
	if j.capture {
		buf.add(line)
	}
}

func trimEOL(b []byte) []byte {
	b = bytes.TrimSuffix(b, []byte("\n"))
	return bytes.TrimSuffix(b, []byte("\r"))
}

func (j *Job) writeLog(line string) {
	j.logMu.Lock()
	defer j.logMu.Unlock()
	if j.logFile != nil {
		_, _ = j.logFile.WriteString(line + "\n")
	}
}

// wait reaps the process, marks the job terminated, then gives the readers
// up to outputDrainTimeout before closing the pipes and Done.
func (j *Job) wait(readers *sync.WaitGroup) {
	err := j.cmd.Wait()

	code := 0
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		code = exitErr.ExitCode()
	default:
		code = -1
		j.logger.Error("wait for process", "error", err)
	}

	j.mu.Lock()
	j.exitCode = code
	j.endedAt = time.Now()
	j.state = StateTerminated
	j.mu.Unlock()
	j.logger.Info("process exited", "exit_code", code)

	j.drain(readers)
	j.closeLog()
	close(j.done)
}

func (j *Job) drain(readers *sync.WaitGroup) {
	flushed := make(chan struct{})
	go func() {
		readers.Wait()
		close(flushed)
	}()
	timer := time.NewTimer(outputDrainTimeout)
	defer timer.Stop()
	select {
	case <-flushed:
	case <-timer.C:
		j.logger.Warn("output still open after process exit, closing pipes", "timeout", outputDrainTimeout)
		closeFiles(j.pipes...)
		<-flushed
	}
	closeFiles(j.pipes...)
}

func (j *Job) closeLog() {
	j.logMu.Lock()
	defer j.logMu.Unlock()
	if j.logFile != nil {
		_ = j.logFile.Close()
		j.logFile = nil
	}
}

// Kill terminates the process group without a graceful signal.
func (j *Job) Kill() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.state != StateRunning || j.cmd == nil || j.cmd.Process == nil {
		return
	}
	if err := killProcessGroup(j.cmd); err != nil {
		j.logger.Warn("kill process group", "error", err)
		_ = j.cmd.Process.Kill()
	}
}

// ReadOutput drains captured stdout lines followed by captured stderr lines.
func (j *Job) ReadOutput() []string {
	out := j.stdout.drain()
	return append(out, j.stderr.drain()...)
}
