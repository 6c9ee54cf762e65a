package admin

import (
	"time"

	"github.com/chris-mc1/homeconnect-ws-sim/pkg/history"
	"github.com/chris-mc1/homeconnect-ws-sim/pkg/service"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// UploadResponse is returned from POST /api/file_upload.
type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Entities int    `json:"entities"`
}

// HealthResponse is returned from GET /api/health.
type HealthResponse struct {
	Status          string    `json:"status"`
	ApplianceLoaded bool      `json:"appliance_loaded"`
	Sessions        int       `json:"sessions"`
	Timestamp       time.Time `json:"timestamp"`
}

// SessionsResponse is returned from GET /api/sessions.
type SessionsResponse struct {
	Sessions []service.SessionInfo `json:"sessions"`
	Count    int                   `json:"count"`
}

// HistoryResponse is returned from GET /api/history.
type HistoryResponse struct {
	Records []history.Record `json:"records"`
	Count   int              `json:"count"`
}
