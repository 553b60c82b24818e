// Package store persists ingestion sessions, their per-file ingest
// records, and the merged datasets in SQLite.
package store

import "time"

// Session is one ingestion session: a set of annotation files merged into
// one dataset for one video.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileRecord is the stored outcome of ingesting one file into a session.
type FileRecord struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id"`
	Filename     string    `json:"filename"`
	Format       string    `json:"format"`
	Confidence   string    `json:"confidence"`
	Records      int       `json:"records"`
	WarningCount int       `json:"warning_count"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Warning is one stored non-fatal ingestion warning.
type Warning struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	FileID    string    `json:"file_id,omitempty"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
