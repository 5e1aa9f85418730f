package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mattjoyce/nagini/internal/protocol"
	"github.com/mattjoyce/nagini/internal/storage"
)

type fakeStatus struct {
	st protocol.ServerStatus
}

func (f fakeStatus) Status() protocol.ServerStatus { return f.st }

type fakeRuns struct {
	listFunc func(ctx context.Context, nodeID, limit int) ([]storage.RunRecord, error)
}

func (f *fakeRuns) ListRuns(ctx context.Context, nodeID, limit int) ([]storage.RunRecord, error) {
	return f.listFunc(ctx, nodeID, limit)
}

func sampleStatus() protocol.ServerStatus {
	return protocol.ServerStatus{
		HostName:     "alpha",
		ConfigDigest: "abc",
		Nodes: []protocol.NodeStatus{
			{NodeID: 1, Services: []protocol.ServiceStatus{{
				ServiceName: "application-starter-1",
				Alive:       true,
				Jobs:        []protocol.JobStatus{{JobName: "application-1", Active: true}},
			}}},
			{NodeID: 2, Services: []protocol.ServiceStatus{{
				ServiceName: "application-starter-2",
				Alive:       true,
				Jobs:        []protocol.JobStatus{},
			}}},
		},
	}
}

func newTestServer(runs RunLister) *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(Config{Listen: "127.0.0.1:0"}, fakeStatus{st: sampleStatus()}, runs, logger)
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rr, req)
	return rr
}

func TestHandleHealthz(t *testing.T) {
	rr := get(t, newTestServer(nil), "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp HealthzResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" || resp.Host != "alpha" {
		t.Fatalf("unexpected healthz: %+v", resp)
	}
	if resp.NodesTotal != 2 || resp.NodesRunning != 1 {
		t.Fatalf("expected 2 nodes with 1 running, got %d/%d", resp.NodesTotal, resp.NodesRunning)
	}
}

func TestHandleStatus(t *testing.T) {
	rr := get(t, newTestServer(nil), "/status")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected JSON content type, got %q", ct)
	}

	var st protocol.ServerStatus
	if err := json.NewDecoder(rr.Body).Decode(&st); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if st.HostName != "alpha" || len(st.Nodes) != 2 {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestHandleListRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	var gotNode, gotLimit int
	runs := &fakeRuns{listFunc: func(ctx context.Context, nodeID, limit int) ([]storage.RunRecord, error) {
		gotNode, gotLimit = nodeID, limit
		return []storage.RunRecord{{
			ID: "r1", NodeID: nodeID, JobName: "application-3",
			Argv: []string{"java", "Main"}, StartedAt: started, EndedAt: started.Add(time.Minute), ExitCode: 137,
		}}, nil
	}}

	rr := get(t, newTestServer(runs), "/nodes/3/runs?limit=5")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotNode != 3 || gotLimit != 5 {
		t.Fatalf("ListRuns called with node=%d limit=%d", gotNode, gotLimit)
	}

	var resp RunListResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.NodeID != 3 || len(resp.Runs) != 1 || resp.Runs[0].ExitCode != 137 {
		t.Fatalf("unexpected runs: %+v", resp)
	}
}

func TestHandleListRunsErrors(t *testing.T) {
	failing := &fakeRuns{listFunc: func(ctx context.Context, nodeID, limit int) ([]storage.RunRecord, error) {
		return nil, errors.New("disk gone")
	}}

	tests := []struct {
		name string
		runs RunLister
		path string
		want int
	}{
		{name: "history disabled", runs: nil, path: "/nodes/1/runs", want: http.StatusNotFound},
		{name: "bad node id", runs: failing, path: "/nodes/x/runs", want: http.StatusBadRequest},
		{name: "bad limit", runs: failing, path: "/nodes/1/runs?limit=0", want: http.StatusBadRequest},
		{name: "limit too large", runs: failing, path: "/nodes/1/runs?limit=501", want: http.StatusBadRequest},
		{name: "store failure", runs: failing, path: "/nodes/1/runs", want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := get(t, newTestServer(tt.runs), tt.path)
			if rr.Code != tt.want {
				t.Fatalf("expected status %d, got %d", tt.want, rr.Code)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil || resp.Error == "" {
				t.Fatalf("expected error body, got %q (%v)", rr.Body.String(), err)
			}
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := newTestServer(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err = http.Get(url)
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
