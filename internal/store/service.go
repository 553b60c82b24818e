package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/annolens/annolens-agent/internal/annotation"
	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/merge"
)

// SessionService manages ingestion sessions: creating them, running files
// through the ingestion pipeline into each session's aggregate, and
// persisting the merged dataset after every change.
type SessionService interface {
	CreateSession(ctx context.Context, name string) (*Session, error)
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error
	GetDataset(ctx context.Context, id string) (*annotation.StandardAnnotationData, error)
	GetFiles(ctx context.Context, sessionID string) ([]*FileRecord, error)
	GetWarnings(ctx context.Context, sessionID string) ([]*Warning, error)
	CountFiles(ctx context.Context) (int, error)
	Ingest(ctx context.Context, sessionID string, files []ingest.File) ([]ingest.FileResult, error)
}

type Service struct {
	repo     Repository
	ingestor *ingest.Service
	logger   *slog.Logger
	workers  int

	mu         sync.Mutex
	aggregates map[string]*merge.Aggregate
}

func NewService(repo Repository, ingestor *ingest.Service, workers int, logger *slog.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	return &Service{
		repo:       repo,
		ingestor:   ingestor,
		logger:     logger,
		workers:    workers,
		aggregates: make(map[string]*merge.Aggregate),
	}
}

func (s *Service) CreateSession(ctx context.Context, name string) (*Session, error) {
	if name == "" {
		name = "session " + time.Now().UTC().Format("2006-01-02 15:04:05")
	}
	now := time.Now().UTC()
	session := &Session{
		ID:        annotation.NewID(),
		Name:      name,
		State:     string(merge.StateEmpty),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.aggregates[session.ID] = merge.New()
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Info("session created", "session_id", session.ID, "name", name)
	}
	return session, nil
}

func (s *Service) GetSession(ctx context.Context, id string) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context) ([]*Session, error) {
	return s.repo.ListSessions(ctx)
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.aggregates, id)
	s.mu.Unlock()
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) GetFiles(ctx context.Context, sessionID string) ([]*FileRecord, error) {
	return s.repo.ListFilesBySession(ctx, sessionID)
}

func (s *Service) GetWarnings(ctx context.Context, sessionID string) ([]*Warning, error) {
	return s.repo.ListWarnings(ctx, sessionID)
}

func (s *Service) CountFiles(ctx context.Context) (int, error) {
	return s.repo.CountFiles(ctx)
}

// GetDataset returns the session's merged dataset, or nil when nothing
// has been merged yet.
func (s *Service) GetDataset(ctx context.Context, id string) (*annotation.StandardAnnotationData, error) {
	agg, err := s.aggregate(ctx, id)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, fmt.Errorf("session not found")
	}
	if agg.State() == merge.StateEmpty {
		return nil, nil
	}
	data := agg.Snapshot()
	return &data, nil
}

// Ingest runs files through the ingestion pipeline into the session's
// aggregate, records per-file outcomes and warnings, and persists the
// updated dataset.
func (s *Service) Ingest(ctx context.Context, sessionID string, files []ingest.File) ([]ingest.FileResult, error) {
	agg, err := s.aggregate(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if agg == nil {
		return nil, fmt.Errorf("session not found")
	}

	results := s.ingestor.IngestBatch(ctx, agg, files, s.workers)

	for _, res := range results {
		record := &FileRecord{
			ID:           annotation.NewID(),
			SessionID:    sessionID,
			Filename:     res.Filename,
			Format:       res.Type,
			Confidence:   string(res.Confidence),
			Records:      res.Records,
			WarningCount: len(res.Warnings),
			Error:        res.Error,
			CreatedAt:    time.Now().UTC(),
		}
		if err := s.repo.CreateFileRecord(ctx, record); err != nil {
			return results, fmt.Errorf("failed to record file %s: %w", res.Filename, err)
		}
		messages := make([]string, 0, len(res.Warnings))
		for _, w := range res.Warnings {
			messages = append(messages, res.Filename+": "+w)
		}
		if err := s.repo.AddWarnings(ctx, sessionID, record.ID, messages); err != nil {
			return results, fmt.Errorf("failed to record warnings for %s: %w", res.Filename, err)
		}
	}

	if err := s.persist(ctx, sessionID, agg); err != nil {
		return results, err
	}
	return results, nil
}

// aggregate returns the in-memory aggregate for a session, restoring it
// from the persisted dataset after a restart. Returns nil when the
// session does not exist.
func (s *Service) aggregate(ctx context.Context, sessionID string) (*merge.Aggregate, error) {
	s.mu.Lock()
	if agg, ok := s.aggregates[sessionID]; ok {
		s.mu.Unlock()
		return agg, nil
	}
	s.mu.Unlock()

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, nil
	}

	datasetJSON, err := s.repo.GetSessionDataset(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var agg *merge.Aggregate
	if datasetJSON == "" {
		agg = merge.New()
	} else {
		var data annotation.StandardAnnotationData
		if err := json.Unmarshal([]byte(datasetJSON), &data); err != nil {
			return nil, fmt.Errorf("stored dataset for session %s is corrupt: %w", sessionID, err)
		}
		agg = merge.Restore(data)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Another goroutine may have restored it meanwhile; keep the first.
	if existing, ok := s.aggregates[sessionID]; ok {
		return existing, nil
	}
	s.aggregates[sessionID] = agg
	return agg, nil
}

func (s *Service) persist(ctx context.Context, sessionID string, agg *merge.Aggregate) error {
	data := agg.Snapshot()
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := s.repo.UpdateSessionDataset(ctx, sessionID, string(agg.State()), string(encoded)); err != nil {
		return fmt.Errorf("failed to persist dataset: %w", err)
	}
	return nil
}
