package store

import (
	"context"
	"database/sql"
	"time"
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error
	UpdateSessionDataset(ctx context.Context, id, state, datasetJSON string) error
	GetSessionDataset(ctx context.Context, id string) (string, error)

	CreateFileRecord(ctx context.Context, f *FileRecord) error
	ListFilesBySession(ctx context.Context, sessionID string) ([]*FileRecord, error)
	CountFiles(ctx context.Context) (int, error)

	AddWarnings(ctx context.Context, sessionID, fileID string, messages []string) error
	ListWarnings(ctx context.Context, sessionID string) ([]*Warning, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, name, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, s.Name, s.State, s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, state, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	var s Session
	var createdAt, updatedAt string
	err := row.Scan(&s.ID, &s.Name, &s.State, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &s, nil
}

func (r *SQLiteRepository) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, state, created_at, updated_at
		FROM sessions ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &s.State, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *SQLiteRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) UpdateSessionDataset(ctx context.Context, id, state, datasetJSON string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET state = ?, dataset = ?, updated_at = ? WHERE id = ?
	`, state, datasetJSON, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) GetSessionDataset(ctx context.Context, id string) (string, error) {
	var dataset sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT dataset FROM sessions WHERE id = ?", id).Scan(&dataset)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return dataset.String, nil
}

func (r *SQLiteRepository) CreateFileRecord(ctx context.Context, f *FileRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO session_files (id, session_id, filename, format, confidence, records, warning_count, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.ID, f.SessionID, f.Filename, f.Format, f.Confidence, f.Records, f.WarningCount, nullString(f.Error), f.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) ListFilesBySession(ctx context.Context, sessionID string) ([]*FileRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, filename, format, confidence, records, warning_count, error, created_at
		FROM session_files WHERE session_id = ? ORDER BY created_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []*FileRecord
	for rows.Next() {
		var f FileRecord
		var errMsg sql.NullString
		var createdAt string
		if err := rows.Scan(&f.ID, &f.SessionID, &f.Filename, &f.Format, &f.Confidence, &f.Records, &f.WarningCount, &errMsg, &createdAt); err != nil {
			return nil, err
		}
		f.Error = errMsg.String
		f.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		files = append(files, &f)
	}
	return files, rows.Err()
}

func (r *SQLiteRepository) CountFiles(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM session_files").Scan(&count)
	return count, err
}

func (r *SQLiteRepository) AddWarnings(ctx context.Context, sessionID, fileID string, messages []string) error {
	if len(messages) == 0 {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339)
	for _, msg := range messages {
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO warnings (session_id, file_id, message, created_at)
			VALUES (?, ?, ?, ?)
		`, sessionID, nullString(fileID), msg, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *SQLiteRepository) ListWarnings(ctx context.Context, sessionID string) ([]*Warning, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, file_id, message, created_at
		FROM warnings WHERE session_id = ? ORDER BY id ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var warnings []*Warning
	for rows.Next() {
		var w Warning
		var fileID sql.NullString
		var createdAt string
		if err := rows.Scan(&w.ID, &w.SessionID, &fileID, &w.Message, &createdAt); err != nil {
			return nil, err
		}
		w.FileID = fileID.String
		w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		warnings = append(warnings, &w)
	}
	return warnings, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
