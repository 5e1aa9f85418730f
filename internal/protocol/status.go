package protocol

import (
	"encoding/json"
	"fmt"
)

// ServerStatus is the PING payload: host → nodes → services → jobs.
type ServerStatus struct {
	HostName     string       `json:"host_name"`
	ConfigDigest string       `json:"config_digest,omitempty"`
	Nodes        []NodeStatus `json:"node_list"`
}

type NodeStatus struct {
	NodeID   int             `json:"node_id"`
	Services []ServiceStatus `json:"service_list"`
}

type ServiceStatus struct {
	ServiceName string      `json:"service_name"`
	Alive       bool        `json:"is_alive"`
	Jobs        []JobStatus `json:"job_list"`
}

type JobStatus struct {
	JobName string `json:"job_name"`
	Active  bool   `json:"is_active"`
}

// EncodeStatus serializes a status tree for a SUCCESS message.
func EncodeStatus(s ServerStatus) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode server status: %w", err)
	}
	return string(b), nil
}

// DecodeStatus parses a PING SUCCESS message.
func DecodeStatus(msg string) (ServerStatus, error) {
	var s ServerStatus
	if err := json.Unmarshal([]byte(msg), &s); err != nil {
		return ServerStatus{}, fmt.Errorf("decode server status: %w", err)
	}
	return s, nil
}
