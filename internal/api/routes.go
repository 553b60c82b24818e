package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/annolens/annolens-agent/internal/annotation"
	"github.com/annolens/annolens-agent/internal/detect"
	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/merge"
)

// maxUploadBytes caps one ingest request. Annotation files are JSON/text;
// anything bigger than this is almost certainly a video dropped by
// mistake.
const maxUploadBytes = 256 << 20

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/detect", detectHandler(cfg))

		r.Post("/sessions", createSessionHandler(cfg))
		r.Get("/sessions", listSessionsHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))
		r.Delete("/sessions/{id}", deleteSessionHandler(cfg))
		r.Post("/sessions/{id}/files", ingestFilesHandler(cfg))
		r.Get("/sessions/{id}/files", listFilesHandler(cfg))
		r.Get("/sessions/{id}/dataset", datasetHandler(cfg))
		r.Get("/sessions/{id}/warnings", warningsHandler(cfg))
	})

	return r
}

func newRequestID() string {
	return annotation.NewID()[:8]
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		sessions, _ := cfg.Sessions.ListSessions(ctx)
		filesCount, _ := cfg.Sessions.CountFiles(ctx)

		state := "idle"
		for _, s := range sessions {
			if s.State == string(merge.StateAccumulating) {
				state = "ingesting"
				break
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:         state,
			SessionsCount: len(sessions),
			FilesCount:    filesCount,
		})
	}
}

func detectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, ok := readUploads(w, r)
		if !ok {
			return
		}
		if len(files) != 1 {
			WriteError(w, http.StatusBadRequest, "exactly one file expected", "BAD_REQUEST")
			return
		}
		verdict := detect.Detect(files[0].Data, files[0].Name, files[0].ContentType)
		WriteJSON(w, http.StatusOK, DetectResponse{Filename: files[0].Name, Verdict: verdict})
	}
}

func createSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSessionRequest
		if r.Body != nil {
			// An empty body means an unnamed session; anything else must
			// be valid JSON.
			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				WriteError(w, http.StatusBadRequest, "failed to read request body", "BAD_REQUEST")
				return
			}
			if len(body) > 0 {
				if err := json.Unmarshal(body, &req); err != nil {
					WriteError(w, http.StatusBadRequest, "invalid JSON body", "BAD_REQUEST")
					return
				}
			}
		}

		session, err := cfg.Sessions.CreateSession(r.Context(), req.Name)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to create session", "INTERNAL_ERROR")
			return
		}
		WriteJSON(w, http.StatusCreated, SessionToResponse(session))
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := cfg.Sessions.ListSessions(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}
		resp := SessionsResponse{Sessions: make([]SessionResponse, len(sessions))}
		for i, s := range sessions {
			resp.Sessions[i] = SessionToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := cfg.Sessions.GetSession(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load session", "INTERNAL_ERROR")
			return
		}
		if session == nil {
			WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, SessionToResponse(session))
	}
}

func deleteSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.Sessions.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to delete session", "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func ingestFilesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "id")

		files, ok := readUploads(w, r)
		if !ok {
			return
		}
		if len(files) == 0 {
			WriteError(w, http.StatusBadRequest, "no files in request", "BAD_REQUEST")
			return
		}

		results, err := cfg.Sessions.Ingest(r.Context(), sessionID, files)
		if err != nil {
			if err.Error() == "session not found" {
				WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "ingestion failed", "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, IngestResponse{SessionID: sessionID, Files: results})
	}
}

func listFilesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := cfg.Sessions.GetFiles(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list files", "INTERNAL_ERROR")
			return
		}
		resp := FilesResponse{Files: make([]FileRecordResponse, len(files))}
		for i, f := range files {
			resp.Files[i] = FileRecordToResponse(f)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func datasetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dataset, err := cfg.Sessions.GetDataset(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if err.Error() == "session not found" {
				WriteError(w, http.StatusNotFound, "session not found", "NOT_FOUND")
				return
			}
			WriteError(w, http.StatusInternalServerError, "failed to load dataset", "INTERNAL_ERROR")
			return
		}
		if dataset == nil {
			WriteError(w, http.StatusNotFound, "no data merged into this session yet", "EMPTY_SESSION")
			return
		}
		WriteJSON(w, http.StatusOK, dataset)
	}
}

func warningsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		warnings, err := cfg.Sessions.GetWarnings(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list warnings", "INTERNAL_ERROR")
			return
		}
		resp := WarningsResponse{Warnings: make([]WarningResponse, len(warnings))}
		for i, warning := range warnings {
			resp.Warnings[i] = WarningResponse{FileID: warning.FileID, Message: warning.Message}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// readUploads collects every file part from a multipart request. On
// failure it writes the error response itself and reports !ok.
func readUploads(w http.ResponseWriter, r *http.Request) ([]ingest.File, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	reader, err := r.MultipartReader()
	if err != nil {
		WriteError(w, http.StatusBadRequest, "multipart form expected", "BAD_REQUEST")
		return nil, false
	}

	var files []ingest.File
	for {
		part, err := reader.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			WriteError(w, http.StatusBadRequest, "malformed multipart form", "BAD_REQUEST")
			return nil, false
		}
		if part.FileName() == "" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		if err != nil {
			WriteError(w, http.StatusRequestEntityTooLarge, "upload too large", "TOO_LARGE")
			return nil, false
		}
		files = append(files, ingest.File{
			Name:        part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Data:        data,
		})
	}
	return files, true
}
