package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/supervisor"
	"github.com/mattjoyce/nagini/internal/transfer"
)

func (s *Server) header() string {
	return "Server: [host=" + s.host + "]: "
}

// handleConn serves exactly one request and closes the connection.
func (s *Server) handleConn(nc net.Conn) {
	defer s.conns.Done()
	logger := s.logger.With("conn", newConnID(), "remote", nc.RemoteAddr().String())
	c := protocol.NewConn(nc)
	defer func() {
		if r := recover(); r != nil {
			logger.Error("handler panic", "panic", r)
		}
		_ = c.Close()
	}()

	req, err := protocol.ReadRequest(c)
	if err != nil {
		var uk *protocol.UnknownKindError
		if errors.As(err, &uk) {
			_ = s.fail(c, uk.Error())
		}
		logger.Warn("bad request", "error", err)
		return
	}

	logger.Debug("request received", "kind", req.Kind().String())
	if err := s.dispatch(c, req, logger); err != nil {
		logger.Error("request failed", "kind", req.Kind().String(), "error", err)
	}
}

func (s *Server) dispatch(c *protocol.Conn, req protocol.Request, logger *slog.Logger) error {
	switch r := req.(type) {
	case protocol.PingRequest:
		return s.handlePing(c)
	case protocol.StopRequest:
		return s.handleStop(c)
	case protocol.ReconfigRequest:
		return s.handleReconfig(c, r)
	case protocol.FilePutRequest:
		return s.handleFilePut(c, r, logger)
	case protocol.FileGetRequest:
		return s.handleFileGet(c, r)
	case protocol.FileDeleteRequest:
		return s.handleFileDelete(c, r)
	case protocol.ServiceStartRequest:
		return s.handleServiceStart(c, r)
	case protocol.ServiceStopRequest:
		return s.handleServiceStop(c, r)
	case protocol.ServiceWatchRequest:
		return s.handleServiceWatch(c, r)
	default:
		uk := &protocol.UnknownKindError{Kind: int32(req.Kind())}
		return errors.Join(uk, s.fail(c, uk.Error()))
	}
}

func (s *Server) success(c *protocol.Conn, msg string) error {
	return protocol.WriteResponse(c, protocol.SuccessResponse{Header: s.header(), Message: fitMessage(msg)})
}

func (s *Server) fail(c *protocol.Conn, msg string) error {
	return protocol.WriteResponse(c, protocol.FailResponse{Header: s.header(), Message: fitMessage(msg)})
}

// fitMessage keeps the tail of msg when it does not fit a wire string.
func fitMessage(msg string) string {
	if len(msg) <= protocol.MaxStringLen {
		return msg
	}
	cut := len(msg) - protocol.MaxStringLen
	for cut < len(msg) && !utf8.RuneStart(msg[cut]) {
		cut++
	}
	return msg[cut:]
}

func (s *Server) handlePing(c *protocol.Conn) error {
	msg, err := protocol.EncodeStatus(s.Status())
	if err != nil {
		return errors.Join(err, s.fail(c, err.Error()))
	}
	return s.success(c, msg)
}

func (s *Server) handleStop(c *protocol.Conn) error {
	err := s.success(c, "stopping server ...")
	_ = c.Close()
	s.stop()
	return err
}

func (s *Server) handleReconfig(c *protocol.Conn, r protocol.ReconfigRequest) error {
	err := s.success(c, fmt.Sprintf("reconfiguring server with %s ...", r.ConfigPath))
	_ = c.Close()
	return errors.Join(err, s.reconfigure(r.ConfigPath))
}

func (s *Server) handleFilePut(c *protocol.Conn, r protocol.FilePutRequest, logger *slog.Logger) error {
	tempDir := s.snap.Load().cfg.Server.TempPath
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to receive file %s. (%v)", r.DestPath, err)))
	}
	archive := transfer.TempArchivePath(tempDir)
	defer os.Remove(archive)

	f, err := os.OpenFile(archive, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to receive file %s. (%v)", r.DestPath, err)))
	}
	done, recvErr := transfer.ReceiveBody(c.Reader(), r.Length, f)
	if err := f.Close(); err != nil && recvErr == nil {
		recvErr = err
	}
	if recvErr != nil {
		msg := fmt.Sprintf("failed to receive file %s. (%d out of %d bytes)", r.DestPath, done, r.Length)
		return errors.Join(recvErr, s.fail(c, msg))
	}
	logger.Info("file received", "dest", r.DestPath, "bytes", done)

	if err := transfer.UnpackFile(archive, r.DestPath); err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to expand file into %s. (%v)", r.DestPath, err)))
	}
	return s.success(c, fmt.Sprintf("successfully received file %s. (%d bytes)", r.DestPath, done))
}

func (s *Server) handleFileGet(c *protocol.Conn, r protocol.FileGetRequest) error {
	if _, err := os.Stat(r.SrcPath); err != nil {
		return s.fail(c, fmt.Sprintf("failed to send %s. (file does not exist)", r.SrcPath))
	}

	archive, size, err := transfer.PackFile(r.SrcPath, s.snap.Load().cfg.Server.TempPath, transfer.PackOptions{})
	if err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to send %s. (%v)", r.SrcPath, err)))
	}
	defer os.Remove(archive)

	f, err := os.Open(archive)
	if err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to send %s. (%v)", r.SrcPath, err)))
	}
	defer f.Close()

	if err := protocol.WriteResponse(c, protocol.FileResponse{Length: size}); err != nil {
		return err
	}
	if _, err := transfer.SendBody(c.Writer(), f, size); err != nil {
		return err
	}
	return c.Flush()
}

func (s *Server) handleFileDelete(c *protocol.Conn, r protocol.FileDeleteRequest) error {
	path := filepath.Clean(r.Path)
	if r.Path == "" || path == string(filepath.Separator) {
		return s.fail(c, fmt.Sprintf("failed to delete %s. (refusing to delete this path)", r.Path))
	}
	if err := os.RemoveAll(path); err != nil {
		return errors.Join(err, s.fail(c, fmt.Sprintf("failed to delete %s. (%v)", r.Path, err)))
	}
	return s.success(c, fmt.Sprintf("successfully deleted %s.", r.Path))
}

// lookupService returns the service of a local node while the caller holds the gate.
func (s *Server) lookupService(nodeID int32) (*snapshot, *supervisor.Service) {
	snap := s.snap.Load()
	return snap, snap.services[int(nodeID)]
}

func (s *Server) handleServiceStart(c *protocol.Conn, r protocol.ServiceStartRequest) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	snap, svc := s.lookupService(r.NodeID)
	if svc == nil || !svc.Alive() {
		return s.fail(c, "application starter service is corrupted.")
	}
	if svc.IsRunningJob() {
		return s.success(c, "application is already running.")
	}

	id := int(r.NodeID)
	argv, err := BuildArgv(snap.cfg.Server.App, snap.layout, id)
	if err != nil {
		return errors.Join(err, s.fail(c, "Failed to start application because of: "+err.Error()))
	}
	if !svc.AddJob(applicationJobName(id), argv, snap.layout.NodePath(id)) {
		return s.success(c, "application is about to start.")
	}
	return s.success(c, fmt.Sprintf("starting application (node = %d) ...\n%s", id, strings.Join(argv, " ")))
}

func (s *Server) handleServiceStop(c *protocol.Conn, r protocol.ServiceStopRequest) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	_, svc := s.lookupService(r.NodeID)
	if svc == nil || !svc.Alive() {
		return s.fail(c, "application starter service is corrupted.")
	}
	if !svc.IsRunningJob() {
		return s.success(c, "application is not running.")
	}
	svc.RemoveAllJobs()
	return s.success(c, fmt.Sprintf("stopping application (node = %d) ...", r.NodeID))
}

func (s *Server) handleServiceWatch(c *protocol.Conn, r protocol.ServiceWatchRequest) error {
	s.gate.RLock()
	defer s.gate.RUnlock()

	_, svc := s.lookupService(r.NodeID)
	name := supervisor.ServiceName(int(r.NodeID))
	switch {
	case svc == nil || !svc.Alive():
		return s.fail(c, fmt.Sprintf("service %s is corrupted.", name))
	case svc.JobCount() == 0:
		return s.fail(c, fmt.Sprintf("service %s does not have any job to run.", name))
	case !svc.IsRunningJob():
		return s.success(c, fmt.Sprintf("service %s is going to run the next job.", name))
	}

	lines := tailLines(svc.ReadOutput(), int(r.TailLines))
	out := append([]string{fmt.Sprintf("        [node = %d]", r.NodeID)}, lines...)
	return s.success(c, strings.Join(out, "\n"))
}

// tailLines keeps the last n lines; n <= 0 keeps everything.
func tailLines(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}
