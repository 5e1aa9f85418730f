package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxRunsLimit = 500

// handleHealthz handles GET /healthz.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	resp := HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Host:          st.HostName,
		NodesTotal:    len(st.Nodes),
	}
	for _, n := range st.Nodes {
		for _, svc := range n.Services {
			for _, j := range svc.Jobs {
				if j.Active {
					resp.NodesRunning++
				}
			}
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleStatus handles GET /status with the same tree PING returns.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.status.Status())
}

// handleListRuns handles GET /nodes/{nodeID}/runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusNotFound, "run history is disabled")
		return
	}
	nodeID, err := strconv.Atoi(chi.URLParam(r, "nodeID"))
	if err != nil || nodeID < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid node id")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > maxRunsLimit {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
	}

	runs, err := s.runs.ListRuns(r.Context(), nodeID, limit)
	if err != nil {
		s.logger.Error("failed to list runs", "node_id", nodeID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, RunListResponse{NodeID: nodeID, Runs: runs})
}

// respondJSON is a helper to write JSON responses
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
