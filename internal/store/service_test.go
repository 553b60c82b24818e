package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/annolens/annolens-agent/internal/db"
	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/merge"
)

const sampleVTT = "WEBVTT\n\n00:00:01.000 --> 00:00:03.000\nhello\n"

func newTestRepo(t *testing.T) Repository {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewRepository(database.Conn())
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	return NewService(repo, ingest.NewService(nil), 2, nil)
}

func TestCreateAndGetSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestRepo(t))

	created, err := svc.CreateSession(ctx, "my videos")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.State != string(merge.StateEmpty) {
		t.Errorf("new session state = %q, want %q", created.State, merge.StateEmpty)
	}

	got, err := svc.GetSession(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got == nil || got.Name != "my videos" {
		t.Errorf("GetSession = %+v", got)
	}

	missing, err := svc.GetSession(ctx, "nope")
	if err != nil {
		t.Fatalf("GetSession(missing): %v", err)
	}
	if missing != nil {
		t.Error("missing session should be nil, not an error")
	}
}

func TestCreateSessionDefaultName(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestRepo(t))

	created, err := svc.CreateSession(ctx, "")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if created.Name == "" {
		t.Error("unnamed sessions should get a generated name")
	}
}

func TestIngestPersistsDataset(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := newTestService(t, repo)

	session, err := svc.CreateSession(ctx, "test")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	results, err := svc.Ingest(ctx, session.ID, []ingest.File{
		{Name: "captions.vtt", Data: []byte(sampleVTT)},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if len(results) != 1 || results[0].Error != "" {
		t.Fatalf("results = %+v", results)
	}

	dataset, err := svc.GetDataset(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if dataset == nil || len(dataset.SpeechRecognition) != 1 {
		t.Fatalf("dataset = %+v, want one speech cue", dataset)
	}

	files, err := svc.GetFiles(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetFiles: %v", err)
	}
	if len(files) != 1 || files[0].Filename != "captions.vtt" {
		t.Errorf("files = %+v", files)
	}

	count, err := svc.CountFiles(ctx)
	if err != nil || count != 1 {
		t.Errorf("CountFiles = %d, %v", count, err)
	}
}

func TestIngestRecordsFailuresAndWarnings(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestRepo(t))

	session, _ := svc.CreateSession(ctx, "test")

	mixedVTT := "WEBVTT\n\n00:00:01.000 --> 00:00:05.000\ngood\n\n00:00:09.000 --> 00:00:08.000\nbad\n"
	results, err := svc.Ingest(ctx, session.ID, []ingest.File{
		{Name: "mixed.vtt", Data: []byte(mixedVTT)},
		{Name: "garbage.bin", Data: []byte("\x00\x01\x02")},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if results[0].Error != "" {
		t.Errorf("mixed.vtt should ingest with warnings, got error %q", results[0].Error)
	}
	if results[1].Error == "" {
		t.Error("garbage.bin should report a failure")
	}

	files, _ := svc.GetFiles(ctx, session.ID)
	if len(files) != 2 {
		t.Fatalf("file records = %d, want 2 (failures are recorded too)", len(files))
	}

	warnings, err := svc.GetWarnings(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetWarnings: %v", err)
	}
	if len(warnings) == 0 {
		t.Error("dropped-cue warning should be persisted")
	}
}

func TestIngestUnknownSession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestRepo(t))

	_, err := svc.Ingest(ctx, "missing", []ingest.File{{Name: "x.vtt", Data: []byte(sampleVTT)}})
	if err == nil || err.Error() != "session not found" {
		t.Errorf("err = %v, want session not found", err)
	}
}

func TestGetDatasetEmptySession(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, newTestRepo(t))

	session, _ := svc.CreateSession(ctx, "empty")
	dataset, err := svc.GetDataset(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetDataset: %v", err)
	}
	if dataset != nil {
		t.Error("empty session should yield a nil dataset")
	}
}

func TestDatasetSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	first := newTestService(t, repo)
	session, _ := first.CreateSession(ctx, "persistent")
	if _, err := first.Ingest(ctx, session.ID, []ingest.File{
		{Name: "captions.vtt", Data: []byte(sampleVTT)},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// A fresh service over the same repository simulates an agent restart:
	// the aggregate must be restored from the persisted dataset.
	second := newTestService(t, repo)
	dataset, err := second.GetDataset(ctx, session.ID)
	if err != nil {
		t.Fatalf("GetDataset after restart: %v", err)
	}
	if dataset == nil || len(dataset.SpeechRecognition) != 1 {
		t.Fatalf("restored dataset = %+v", dataset)
	}

	// And further ingestion keeps accumulating on the restored aggregate.
	rttm := "SPEAKER f1 1 0.0 2.5 <NA> <NA> SPEAKER_00 0.9\n"
	if _, err := second.Ingest(ctx, session.ID, []ingest.File{
		{Name: "diarization.rttm", Data: []byte(rttm)},
	}); err != nil {
		t.Fatalf("Ingest after restart: %v", err)
	}
	dataset, _ = second.GetDataset(ctx, session.ID)
	if len(dataset.SpeechRecognition) != 1 || len(dataset.SpeakerDiarization) != 1 {
		t.Errorf("dataset after second ingest = %+v", dataset)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)
	svc := newTestService(t, repo)

	session, _ := svc.CreateSession(ctx, "doomed")
	if _, err := svc.Ingest(ctx, session.ID, []ingest.File{
		{Name: "captions.vtt", Data: []byte(sampleVTT)},
	}); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	if err := svc.DeleteSession(ctx, session.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	got, _ := svc.GetSession(ctx, session.ID)
	if got != nil {
		t.Error("session still present after delete")
	}
	count, _ := svc.CountFiles(ctx)
	if count != 0 {
		t.Errorf("file records = %d after cascade delete, want 0", count)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	value, err := repo.GetConfig(ctx, "auth_token")
	if err != nil || value != "" {
		t.Fatalf("GetConfig(missing) = %q, %v", value, err)
	}

	if err := repo.SetConfig(ctx, "auth_token", "abc"); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}
	if err := repo.SetConfig(ctx, "auth_token", "def"); err != nil {
		t.Fatalf("SetConfig upsert: %v", err)
	}

	value, err = repo.GetConfig(ctx, "auth_token")
	if err != nil || value != "def" {
		t.Errorf("GetConfig = %q, %v, want def", value, err)
	}
}
