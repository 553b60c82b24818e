package api

import (
	"time"

	"github.com/annolens/annolens-agent/internal/detect"
	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/store"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State         string `json:"state"`
	SessionsCount int    `json:"sessions_count"`
	FilesCount    int    `json:"files_count"`
}

type CreateSessionRequest struct {
	Name string `json:"name,omitempty"`
}

type SessionResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type SessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

type IngestResponse struct {
	SessionID string              `json:"session_id"`
	Files     []ingest.FileResult `json:"files"`
}

type FileRecordResponse struct {
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	Format       string `json:"format"`
	Confidence   string `json:"confidence"`
	Records      int    `json:"records"`
	WarningCount int    `json:"warning_count"`
	Error        string `json:"error,omitempty"`
	CreatedAt    string `json:"created_at"`
}

type FilesResponse struct {
	Files []FileRecordResponse `json:"files"`
}

type WarningResponse struct {
	FileID  string `json:"file_id,omitempty"`
	Message string `json:"message"`
}

type WarningsResponse struct {
	Warnings []WarningResponse `json:"warnings"`
}

type DetectResponse struct {
	Filename string        `json:"filename"`
	Verdict  detect.Result `json:"verdict"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func SessionToResponse(s *store.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Name:      s.Name,
		State:     s.State,
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
		UpdatedAt: s.UpdatedAt.Format(time.RFC3339),
	}
}

func FileRecordToResponse(f *store.FileRecord) FileRecordResponse {
	return FileRecordResponse{
		ID:           f.ID,
		Filename:     f.Filename,
		Format:       f.Format,
		Confidence:   f.Confidence,
		Records:      f.Records,
		WarningCount: f.WarningCount,
		Error:        f.Error,
		CreatedAt:    f.CreatedAt.Format(time.RFC3339),
	}
}
