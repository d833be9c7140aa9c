package api

import "github.com/Davygupta47/notebook/internal/jobs"

// ErrorResponse is the body of every non-stream failure.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the /health body.
type HealthResponse struct {
	Status string `json:"status"`
}

// GateStatus reports admission gate occupancy.
type GateStatus struct {
	Capacity int `json:"capacity"`
	InFlight int `json:"in_flight"`
	Waiting  int `json:"waiting"`
}

// StatusResponse is the /api/status body.
type StatusResponse struct {
	Service        string          `json:"service"`
	Version        string          `json:"version"`
	StorageBackend string          `json:"storage_backend"`
	Pipeline       string          `json:"pipeline"`
	MaxUploadMB    int             `json:"max_upload_mb"`
	Gate           GateStatus      `json:"gate"`
	Jobs           []jobs.Snapshot `json:"jobs"`
}
