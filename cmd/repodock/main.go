package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/repodock/repodock/internal/controller"
	"github.com/repodock/repodock/internal/credentials"
	"github.com/repodock/repodock/internal/docker"
	"github.com/repodock/repodock/internal/gitsync"
	"github.com/repodock/repodock/internal/labels"
	"github.com/repodock/repodock/internal/orchestrator"
	"github.com/repodock/repodock/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dataDir := "/data"
	if _, err := os.Stat(dataDir); os.IsNotExist(err) {
		// Fallback for local development if /data doesn't exist
		dataDir = "."
	}

	reposDir := strings.TrimSpace(os.Getenv("REPODOCK_REPOS_DIR"))
	if reposDir == "" {
		reposDir = filepath.Join(dataDir, "repos")
	}
	if err := os.MkdirAll(reposDir, 0755); err != nil {
		logger.Error("Failed to create repos dir", "dir", reposDir, "error", err)
		os.Exit(1)
	}

	var dbStore store.Store
	var err error

	dbType := os.Getenv("DB_TYPE")
	if dbType == "postgres" {
		connString := os.Getenv("DB_CONNECTION_STRING")
		if connString == "" {
			logger.Error("DB_CONNECTION_STRING is required for postgres")
			os.Exit(1)
		}
		dbStore, err = store.NewPostgresStore(context.Background(), connString)
		if err != nil {
			logger.Error("Failed to initialize postgres store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using PostgreSQL store")
	} else {
		// Default to SQLite
		dbPath := filepath.Join(dataDir, "repodock.db")

		dbStore, err = store.NewSQLiteStore(dbPath)
		if err != nil {
			logger.Error("Failed to initialize sqlite store", "error", err)
			os.Exit(1)
		}
		logger.Info("Using SQLite store")
	}
	defer dbStore.Close()

	credentialService, err := credentials.NewServiceFromEnv(filepath.Join(dataDir, "repodock-encryption.key"))
	if err != nil {
		logger.Error("Failed to initialize credential encryption", "error", err)
		os.Exit(1)
	}
	logger.Info("Credential encryption is enabled", "source", credentialService.KeySource())

	cfg, err := orchestrator.LoadConfigFromEnv()
	if err != nil {
		logger.Error("Failed to load orchestrator config", "error", err)
		os.Exit(1)
	}

	registry := controller.NewRegistry(dbStore, credentialService, logger, reposDir)
	engine := gitsync.NewEngine(reposDir, cfg.SyncTimeout, registry, logger)

	inspector, err := docker.NewInspector()
	if err != nil {
		logger.Error("Failed to initialize docker client", "error", err)
		os.Exit(1)
	}
	defer inspector.Close()

	labelKeys := labels.DefaultKeys
	if raw := strings.TrimSpace(os.Getenv("REPODOCK_RESTART_LABEL_KEYS")); raw != "" {
		labelKeys = nil
		for _, key := range strings.Split(raw, ",") {
			if key = strings.TrimSpace(key); key != "" {
				labelKeys = append(labelKeys, key)
			}
		}
	}
	resolver := labels.NewResolver(labelKeys)

	coordinator := orchestrator.NewCoordinator(inspector, resolver, logger, cfg.RestartTimeout)
	oplog := orchestrator.NewLogWriter(dbStore, logger, cfg.LogQueueSize)
	orch := orchestrator.New(registry, engine, coordinator, oplog, logger, cfg)

	handler := controller.NewHandler(registry, orch, coordinator, dbStore, logger)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Mount("/", handler.Routes())

	addr := ":8080"
	if fromEnv := strings.TrimSpace(os.Getenv("REPODOCK_LISTEN_ADDR")); fromEnv != "" {
		addr = fromEnv
	}

	server := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("Starting server", "addr", addr, "repos_dir", reposDir, "label_keys", labelKeys)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", "error", err)
	}

	// Flush queued operation log entries before the store closes.
	oplog.Close()
}
