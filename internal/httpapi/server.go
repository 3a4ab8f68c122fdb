// Package httpapi exposes the webcam session and upload routes over HTTP,
// plus a WebSocket stream that carries the same session operations.
package httpapi

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/lexiqai/lipread-gateway/internal/history"
	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/pipeline"
	"github.com/lexiqai/lipread-gateway/internal/session"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
	maxFrameBodyBytes   = 16 << 20
)

// Pipeline turns recorded frames or an uploaded file into a transcription
type Pipeline interface {
	FinalizeSession(ctx context.Context, sessionID string, frames []*image.Gray) (pipeline.Outcome, error)
	ProcessUpload(ctx context.Context, path string) (pipeline.Outcome, error)
}

// HistoryReader lists recent recognition outcomes
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

// Config holds HTTP layer configuration
type Config struct {
	UploadDir      string
	MaxUploadBytes int64
	CookieSecure   bool
	StaticDir      string // Served at / when set

	// Checks backs /ready; Metrics backs /metrics and is skipped when nil
	Checks  map[string]observability.HealthCheckFunc
	Metrics http.Handler
}

// Server routes API requests to the session manager and pipeline
type Server struct {
	sessions *session.Manager
	pipeline Pipeline
	history  HistoryReader
	config   Config
}

// NewServer creates a server. history may be nil, in which case /api/history
// reports that it is disabled.
func NewServer(sessions *session.Manager, p Pipeline, h HistoryReader, cfg Config) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	return &Server{
		sessions: sessions,
		pipeline: p,
		history:  h,
		config:   cfg,
	}
}

// Handler returns the full route table wrapped in tracing and correlation middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/upload/video", s.handleUpload)
	mux.HandleFunc("POST /api/webcam/start-session", s.handleStartSession)
	mux.HandleFunc("POST /api/webcam/toggle-recording", s.handleToggle)
	mux.HandleFunc("POST /api/webcam/process-frame", s.handleFrame)
	mux.HandleFunc("POST /api/webcam/process-session", s.handleProcessSession)
	mux.HandleFunc("GET /api/webcam/stream", s.handleStream)
	mux.HandleFunc("GET /api/history", s.handleHistory)

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(s.config.Checks))
	if s.config.Metrics != nil {
		mux.Handle("GET /metrics", s.config.Metrics)
	}
	if s.config.StaticDir != "" {
		mux.Handle("GET /", http.FileServer(http.Dir(s.config.StaticDir)))
	}

	return otelhttp.NewHandler(withCorrelationID(mux), "lipread-gateway")
}

type errorResponse struct {
	Type    string `json:"type,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type historyResponse struct {
	Success bool            `json:"success"`
	Entries []history.Entry `json:"entries"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, errorResponse{Error: "History is disabled"})
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = min(n, maxHistoryLimit)
		}
	}

	entries, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		logger := observability.LoggerFromContext(r.Context())
		logger.Error().Err(err).Msg("Failed to read history")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to read history"})
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Success: true, Entries: entries})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		observability.RecordError("encode_error", "httpapi")
	}
}
