package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/disneyvacation/wikihow-link-bot/internal/amp"
	"github.com/disneyvacation/wikihow-link-bot/internal/config"
	"github.com/disneyvacation/wikihow-link-bot/internal/linkfix"
	"github.com/disneyvacation/wikihow-link-bot/internal/moderation"
	"github.com/disneyvacation/wikihow-link-bot/internal/notifications"
	"github.com/disneyvacation/wikihow-link-bot/internal/outcomelog"
	"github.com/disneyvacation/wikihow-link-bot/internal/platform"
	"github.com/disneyvacation/wikihow-link-bot/internal/scheduler"
	"github.com/disneyvacation/wikihow-link-bot/internal/storage"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load environment variables from .env file if it exists
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})

	logrus.Infof("Starting WikiHowLink Bot as /u/%s on r/%v", cfg.BotUsername, cfg.Subreddits)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	outcomes, err := outcomelog.Open(cfg.LogFile)
	if err != nil {
		logrus.Fatalf("Failed to open outcome log: %v", err)
	}
	defer outcomes.Close()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		logrus.Fatalf("Failed to initialize storage: %v", err)
	}

	reddit := platform.NewRedditClient(platform.Credentials{
		ClientID:     cfg.RedditClientID,
		ClientSecret: cfg.RedditClientSecret,
		Username:     cfg.RedditUsername,
		Password:     cfg.RedditPassword,
		UserAgent:    cfg.RedditUserAgent,
	})

	resolver := amp.NewResolver(
		amp.WithMaxDepth(cfg.AMPMaxDepth),
		amp.WithCache(cfg.AMPCacheSize, cfg.AMPCacheTTL),
	)

	moderationService := moderation.NewService(
		reddit,
		linkfix.NewNormalizer(resolver),
		linkfix.NewPolicy(cfg.CitationDomains),
		outcomes,
		moderation.Options{
			Bot:          moderation.BotIdentity(cfg.BotUsername),
			Communities:  cfg.Subreddits,
			Moderators:   cfg.Moderators,
			ReminderText: cfg.ReminderText,
			PostLimit:    cfg.PostLimit,
			MinPostAge:   cfg.MinPostAge,
			MaxPostAge:   cfg.MaxPostAge,
			RemovalDelay: cfg.RemovalDelay,
		},
	)

	notificationService := notifications.NewService(cfg, reddit)

	schedulerService := scheduler.NewService(cfg, moderationService, notificationService, archive, outcomes)
	if err := schedulerService.Start(); err != nil {
		logrus.Fatalf("Failed to start scheduler: %v", err)
	}
	defer schedulerService.Stop()

	router := mux.NewRouter()
	router.HandleFunc("/health", healthCheckHandler).Methods("GET")
	router.HandleFunc("/stats", statsHandler(schedulerService)).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.HandleFunc("/trigger", triggerHandler(ctx, schedulerService)).Methods("POST")
	router.HandleFunc("/digests", digestListHandler(archive)).Methods("GET")
	router.HandleFunc("/digests/{name}", digestHandler(archive)).Methods("GET")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("HTTP server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("HTTP server failed: %v", err)
		}
	}()

	sweepsDone := make(chan struct{})
	go func() {
		defer close(sweepsDone)
		schedulerService.Run(ctx)
	}()

	<-ctx.Done()
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("Server forced to shutdown: %v", err)
	}

	select {
	case <-sweepsDone:
	case <-shutdownCtx.Done():
		logrus.Warn("Sweep did not finish before shutdown deadline")
	}

	logrus.Info("Bot exited")
}

// newArchive picks Azure Blob Storage when an account is configured and a
// local directory otherwise
func newArchive(ctx context.Context, cfg *config.Config) (storage.StorageInterface, error) {
	if cfg.StorageAccount != "" {
		return storage.NewAzureStorage(ctx, cfg.StorageAccount, cfg.StorageContainer)
	}
	return storage.NewFileStorage(cfg.ArchiveDir)
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","timestamp":"` + time.Now().Format(time.RFC3339) + `"}`))
}

func statsHandler(schedulerService *scheduler.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(schedulerService.GetStats()); err != nil {
			logrus.Errorf("Failed to encode stats: %v", err)
		}
	}
}

// digestListHandler lists the archived weekly digests
func digestListHandler(archive storage.StorageInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := archive.List(r.Context(), "digest-")
		if err != nil {
			logrus.Errorf("Failed to list digests: %v", err)
			http.Error(w, "failed to list digests", http.StatusInternalServerError)
			return
		}
		if names == nil {
			names = []string{}
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string][]string{"digests": names}); err != nil {
			logrus.Errorf("Failed to encode digest list: %v", err)
		}
	}
}

// digestHandler serves one archived digest as plain text
func digestHandler(archive storage.StorageInterface) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := mux.Vars(r)["name"]
		data, err := archive.Retrieve(r.Context(), name)
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		if err != nil {
			logrus.Errorf("Failed to retrieve digest %s: %v", name, err)
			http.Error(w, "failed to retrieve digest", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write(data)
	}
}

func triggerHandler(ctx context.Context, schedulerService *scheduler.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		err := schedulerService.TriggerSweep(ctx)
		if errors.Is(err, scheduler.ErrSweepInProgress) {
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{"message":"A sweep is already running"}`))
			return
		}

		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"message":"Sweep triggered successfully"}`))
	}
}
