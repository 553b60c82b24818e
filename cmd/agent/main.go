package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/annolens/annolens-agent/internal/api"
	"github.com/annolens/annolens-agent/internal/config"
	"github.com/annolens/annolens-agent/internal/db"
	"github.com/annolens/annolens-agent/internal/ingest"
	"github.com/annolens/annolens-agent/internal/logging"
	"github.com/annolens/annolens-agent/internal/store"
	"github.com/annolens/annolens-agent/internal/watcher"
)

var Version = "0.1.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting annolens agent", "version", Version, "data_dir", cfg.DataDir())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := store.NewRepository(database.Conn())

	deviceID, err := ensureConfigValue(repo, "device_id", 16)
	if err != nil {
		return fmt.Errorf("failed to ensure device ID: %w", err)
	}

	authToken, err := ensureConfigValue(repo, "auth_token", 32)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Println("║                    ANNOLENS AGENT v0.1.0                  ║")
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Device ID:  %-45s ║\n", deviceID[:16]+"...")
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	ingestor := ingest.NewService(logging.WithComponent(logger, "ingest"))
	sessions := store.NewService(repo, ingestor, cfg.Workers(), logging.WithComponent(logger, "store"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if inbox := cfg.InboxDir(); inbox != "" {
		if err := startInboxWatcher(ctx, inbox, sessions, logger); err != nil {
			logger.Warn("inbox watcher unavailable", "path", inbox, "error", err)
		}
	}

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Sessions:   sessions,
		Repository: repo,
		Logger:     logger,
		StartTime:  startTime,
		DeviceID:   deviceID,
		Version:    Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}

// startInboxWatcher ingests files dropped into the inbox directory into a
// dedicated session, creating it on first use.
func startInboxWatcher(ctx context.Context, inbox string, sessions store.SessionService, logger *slog.Logger) error {
	if err := os.MkdirAll(inbox, 0755); err != nil {
		return err
	}

	var inboxSessionID string
	for _, s := range mustList(ctx, sessions) {
		if s.Name == "inbox" {
			inboxSessionID = s.ID
			break
		}
	}
	if inboxSessionID == "" {
		session, err := sessions.CreateSession(ctx, "inbox")
		if err != nil {
			return err
		}
		inboxSessionID = session.ID
	}

	processedDir := filepath.Join(inbox, "processed")
	if err := os.MkdirAll(processedDir, 0755); err != nil {
		return err
	}

	w := watcher.NewPollWatcher(2*time.Second, logging.WithComponent(logger, "watcher"))
	w.OnFile(func(path string) {
		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("failed to read inbox file", "path", path, "error", err)
			return
		}
		results, err := sessions.Ingest(ctx, inboxSessionID, []ingest.File{{
			Name: filepath.Base(path),
			Data: data,
		}})
		if err != nil {
			logger.Error("inbox ingestion failed", "path", path, "error", err)
			return
		}
		for _, res := range results {
			if res.Error != "" {
				logger.Warn("inbox file rejected", "path", path, "reason", res.Error)
			}
		}
		// Move the file aside so the inbox only ever holds new work.
		if err := os.Rename(path, filepath.Join(processedDir, filepath.Base(path))); err != nil {
			logger.Warn("failed to move ingested file aside", "path", path, "error", err)
		}
	})

	go func() {
		if err := w.Watch(ctx, inbox); err != nil && ctx.Err() == nil {
			logger.Error("inbox watcher stopped", "error", err)
		}
	}()
	return nil
}

func mustList(ctx context.Context, sessions store.SessionService) []*store.Session {
	list, err := sessions.ListSessions(ctx)
	if err != nil {
		return nil
	}
	return list
}

func ensureConfigValue(repo store.Repository, key string, size int) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, key)
	if err == nil && existing != "" {
		return existing, nil
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)

	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", err
	}

	return value, nil
}
