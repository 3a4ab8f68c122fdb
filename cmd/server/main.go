package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lexiqai/lipread-gateway/internal/clip"
	"github.com/lexiqai/lipread-gateway/internal/config"
	"github.com/lexiqai/lipread-gateway/internal/history"
	"github.com/lexiqai/lipread-gateway/internal/httpapi"
	"github.com/lexiqai/lipread-gateway/internal/landmark"
	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/pipeline"
	"github.com/lexiqai/lipread-gateway/internal/recognition"
	"github.com/lexiqai/lipread-gateway/internal/session"
	"github.com/lexiqai/lipread-gateway/internal/vision"
)

const historyPruneInterval = time.Hour

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("port", cfg.Port).
		Str("recognizer_mode", cfg.RecognizerMode).
		Str("landmark_url", cfg.LandmarkURL).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Lip reading gateway starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.TracingEndpoint)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	// Face landmarks and speaking detection
	landmarks := landmark.NewHTTPClient(cfg.LandmarkURL, time.Duration(cfg.LandmarkTimeoutMS)*time.Millisecond)
	detector := vision.NewSpeakingDetector(landmarks, &vision.DetectorConfig{
		Threshold: cfg.SpeakingThreshold,
		Window:    cfg.MotionWindow,
	})

	sessions := session.NewManager(detector, session.WithTTL(cfg.SessionTTL))
	go sessions.Run(ctx, cfg.SessionSweepInterval)

	// Clip assembly
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logger.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("Failed to create upload directory")
	}
	ffmpeg, err := clip.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid ffmpeg configuration")
	}
	assembler := clip.NewAssembler(ffmpeg, ffmpeg, clip.Config{
		FPS:       cfg.ClipFPS,
		MinFrames: cfg.MinClipFrames,
		TempDir:   cfg.UploadDir,
	})

	// Recognition backend behind breaker, retry and timeout
	backend, err := recognition.NewBackend(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create recognizer")
	}
	defer backend.Close()
	recognizer := recognition.NewGuardedFromConfig(backend, cfg)

	checks := map[string]observability.HealthCheckFunc{
		"recognizer": backend.HealthCheck,
		"landmarks":  landmarks.HealthCheck,
	}

	// Optional recognition history
	var recorder pipeline.Recorder
	var reader httpapi.HistoryReader
	if cfg.HistoryDBPath != "" {
		store, err := history.Open(ctx, cfg.HistoryDBPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.HistoryDBPath).Msg("Failed to open history store")
		}
		defer store.Close()
		recorder, reader = store, store
		checks["history"] = store.HealthCheck
		go pruneHistory(ctx, store, cfg.HistoryRetention)
		logger.Info().Str("path", cfg.HistoryDBPath).Msg("Recognition history enabled")
	}

	svc := pipeline.NewService(assembler, recognizer, recorder, pipeline.Config{
		RepetitionThreshold: cfg.RepetitionThreshold,
		Concurrency:         cfg.RecognitionConcurrency,
	})

	apiCfg := httpapi.Config{
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadMB << 20,
		CookieSecure:   cfg.CookieSecure,
		StaticDir:      cfg.StaticDir,
		Checks:         checks,
	}
	if cfg.MetricsEnabled {
		apiCfg.Metrics = promhttp.Handler()
		logger.Info().Msg("Prometheus metrics enabled at /metrics")
	}
	api := httpapi.NewServer(sessions, svc, reader, apiCfg)

	// Recognition can hold a request open for the full recognition timeout
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      cfg.RecognitionTimeout + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("endpoint", fmt.Sprintf("http://localhost:%s/", cfg.Port)).
			Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("Failed to flush traces")
	}

	logger.Info().Msg("Server exited gracefully")
}

// pruneHistory deletes entries older than retention every hour until ctx is done
func pruneHistory(ctx context.Context, store *history.Store, retention time.Duration) {
	if retention <= 0 {
		return
	}
	logger := observability.GetLogger()
	ticker := time.NewTicker(historyPruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.Prune(ctx, time.Now().Add(-retention))
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to prune history")
				continue
			}
			if n > 0 {
				logger.Info().Int64("pruned", n).Msg("Pruned recognition history")
			}
		}
	}
}
