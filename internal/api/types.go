package api

import "github.com/mattjoyce/nagini/internal/storage"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Host          string `json:"host"`
	NodesTotal    int    `json:"nodes_total"`
	NodesRunning  int    `json:"nodes_running"`
}

// RunListResponse is returned by GET /nodes/{id}/runs.
type RunListResponse struct {
	NodeID int                 `json:"node_id"`
	Runs   []storage.RunRecord `json:"runs"`
}
