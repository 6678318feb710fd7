package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PabloGalante/carebot/internal/adapters/dialogue"
	httpadapter "github.com/PabloGalante/carebot/internal/adapters/http"
	"github.com/PabloGalante/carebot/internal/adapters/signals"
	firestorestore "github.com/PabloGalante/carebot/internal/adapters/storage/firestore"
	memstore "github.com/PabloGalante/carebot/internal/adapters/storage/memory"
	pgstore "github.com/PabloGalante/carebot/internal/adapters/storage/postgres"
	"github.com/PabloGalante/carebot/internal/app/conversation"
	"github.com/PabloGalante/carebot/internal/config"
	"github.com/PabloGalante/carebot/internal/domain"
	"github.com/PabloGalante/carebot/internal/observability"
)

func main() {
	cfg := config.Load()
	observability.Setup(cfg.LogLevel, os.Stdout)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("carebot starting",
		"port", cfg.Port,
		"storage", cfg.StorageBackend,
		"mock_dialogue", cfg.UseMockDialogue,
		"response_delay", cfg.ResponseDelay,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Dialogue server: scripted (dev) or Rasa webhook
	var dialogueClient domain.DialogueClient
	if cfg.UseMockDialogue {
		scripted, err := dialogue.NewScriptedDialogue(cfg.MockScriptPath)
		if err != nil {
			slog.Error("failed to load dialogue script", "error", err)
			os.Exit(1)
		}
		slog.Info("using scripted dialogue", "script", cfg.MockScriptPath)
		dialogueClient = scripted
	} else {
		rasa, err := dialogue.NewRasaClient(cfg.ServerEndpoint, dialogue.WithTimeout(cfg.RequestTimeout))
		if err != nil {
			slog.Error("failed to create dialogue client", "error", err)
			os.Exit(1)
		}
		slog.Info("using dialogue webhook", "endpoint", cfg.ServerEndpoint, "timeout", cfg.RequestTimeout)
		dialogueClient = rasa
	}

	// Storage: memory, Firestore or Postgres
	var (
		sessionStore domain.SessionStore
		messageStore domain.MessageStore
	)
	switch cfg.StorageBackend {
	case config.StorageFirestore:
		fsStore, err := firestorestore.NewStore(ctx, cfg.GCPProjectID)
		if err != nil {
			slog.Error("failed to initialize Firestore store", "error", err)
			os.Exit(1)
		}
		defer fsStore.Close()
		slog.Info("using Firestore storage", "project", cfg.GCPProjectID)

		// 1 store, implements 2 interfaces
		sessionStore, messageStore = fsStore, fsStore

	case config.StoragePostgres:
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pg.Close()
		slog.Info("using Postgres storage")

		sessionStore, messageStore = pg, pg

	default:
		slog.Info("using in-memory storage")
		sessionStore, messageStore = memstore.NewSessionStore(), memstore.NewMessageStore()
	}

	// Signals: NATS when configured
	var publisher domain.SignalPublisher = signals.Noop{}
	if cfg.NatsURL != "" {
		nats, err := signals.NewNATSPublisher(cfg.NatsURL, cfg.SignalSubjectPrefix)
		if err != nil {
			slog.Error("failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nats.Close()
		slog.Info("publishing signals to NATS", "url", cfg.NatsURL, "prefix", cfg.SignalSubjectPrefix)
		publisher = nats
	}

	svc := conversation.NewService(dialogueClient, sessionStore, messageStore,
		conversation.WithResponseDelay(cfg.ResponseDelay),
		conversation.WithProbeOnStart(cfg.ProbeOnStart),
		conversation.WithSignalPublisher(publisher),
	)
	defer svc.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           httpadapter.NewServer(svc, cfg.AllowedOrigin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("carebot API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown error", "error", err)
	}
}
