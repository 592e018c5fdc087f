package api

import (
	"github.com/obsidianstack/entropyscan/internal/entropy"
	"github.com/obsidianstack/entropyscan/internal/stats"
)

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	Target     string `json:"target"`
	Discovered int    `json:"discovered"`
	Scored     int    `json:"scored"`
	UpdatedAt  string `json:"updated_at,omitempty"` // RFC3339
}

// FileResponse is one tracked file in GET /api/v1/file.
type FileResponse struct {
	entropy.FileEntropy
	Error     string `json:"error,omitempty"`
	UpdatedAt string `json:"updated_at"` // RFC3339
}

// SkippedResponse is one unscored file in GET /api/v1/skipped.
type SkippedResponse struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// SnapshotResponse is the payload for GET /api/v1/snapshot and the data of
// every WebSocket "snapshot" message.
type SnapshotResponse struct {
	ID          string                `json:"id"`
	Stats       stats.Stats           `json:"stats"`
	Files       []entropy.FileEntropy `json:"files"`
	Outliers    []entropy.FileEntropy `json:"outliers"`
	Skipped     []SkippedResponse     `json:"skipped"`
	UpdatedAt   string                `json:"updated_at,omitempty"` // RFC3339
	GeneratedAt string                `json:"generated_at"`         // RFC3339
}

type errorResponse struct {
	Error string `json:"error"`
}
