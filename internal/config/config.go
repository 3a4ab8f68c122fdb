package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Recognizer backends.
const (
	RecognizerExec = "exec"
	RecognizerHTTP = "http"
	RecognizerGRPC = "grpc"
)

// Config holds all configuration for the lip reading gateway
type Config struct {
	// Server configuration
	Port         string `envconfig:"PORT" default:"5000"`
	StaticDir    string `envconfig:"STATIC_DIR" default:""` // Browser UI; not served when empty
	UploadDir    string `envconfig:"UPLOAD_DIR" default:"/tmp/uploads"`
	MaxUploadMB  int64  `envconfig:"MAX_UPLOAD_MB" default:"100"`
	CookieSecure bool   `envconfig:"COOKIE_SECURE" default:"false"`

	// Face landmark sidecar
	LandmarkURL       string  `envconfig:"LANDMARK_URL" default:"http://localhost:8501/landmarks"`
	LandmarkTimeoutMS int     `envconfig:"LANDMARK_TIMEOUT_MS" default:"2000"`
	SpeakingThreshold float64 `envconfig:"SPEAKING_THRESHOLD" default:"0.003"` // Mean mouth displacement, normalized units
	MotionWindow      int     `envconfig:"MOTION_WINDOW" default:"10"`         // Motion samples averaged for speaking detection

	// Recognition pipeline
	RecognizerMode         string        `envconfig:"RECOGNIZER_MODE" default:"exec"` // exec, http, grpc
	RecognizerCommand      string        `envconfig:"RECOGNIZER_COMMAND" default:"python -m pipelines.infer"`
	RecognizerURL          string        `envconfig:"RECOGNIZER_URL" default:""`
	RecognizerGRPCAddr     string        `envconfig:"RECOGNIZER_GRPC_ADDR" default:""`
	RecognitionTimeout     time.Duration `envconfig:"RECOGNITION_TIMEOUT" default:"120s"`
	RecognitionConcurrency int64         `envconfig:"RECOGNITION_CONCURRENCY" default:"2"`
	RepetitionThreshold    float64       `envconfig:"REPETITION_THRESHOLD" default:"0.8"`

	// Clip assembly
	FFmpegPath    string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	FFprobePath   string `envconfig:"FFPROBE_PATH" default:"ffprobe"`
	ClipFPS       int    `envconfig:"CLIP_FPS" default:"25"`
	MinClipFrames int    `envconfig:"MIN_CLIP_FRAMES" default:"30"`

	// Session registry
	SessionTTL           time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	SessionSweepInterval time.Duration `envconfig:"SESSION_SWEEP_INTERVAL" default:"1m"`

	// Recognition history (sqlite); disabled when empty
	HistoryDBPath    string        `envconfig:"HISTORY_DB_PATH" default:""`
	HistoryRetention time.Duration `envconfig:"HISTORY_RETENTION" default:"720h"` // 0 keeps everything

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"2"`             // Maximum attempts per recognition
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"250"`        // Initial backoff in milliseconds

	// Observability configuration
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty       bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
	TracingEndpoint string `envconfig:"TRACING_ENDPOINT" default:""`    // OTLP/HTTP collector URL; tracing off when empty
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c *Config) Validate() error {
	switch c.RecognizerMode {
	case RecognizerExec:
		if c.RecognizerCommand == "" {
			return fmt.Errorf("RECOGNIZER_COMMAND is required when RECOGNIZER_MODE=exec")
		}
	case RecognizerHTTP:
		if c.RecognizerURL == "" {
			return fmt.Errorf("RECOGNIZER_URL is required when RECOGNIZER_MODE=http")
		}
	case RecognizerGRPC:
		if c.RecognizerGRPCAddr == "" {
			return fmt.Errorf("RECOGNIZER_GRPC_ADDR is required when RECOGNIZER_MODE=grpc")
		}
	default:
		return fmt.Errorf("unknown RECOGNIZER_MODE %q (want exec, http or grpc)", c.RecognizerMode)
	}

	if c.LandmarkURL == "" {
		return fmt.Errorf("LANDMARK_URL is required")
	}
	if c.RepetitionThreshold <= 0 || c.RepetitionThreshold > 1 {
		return fmt.Errorf("REPETITION_THRESHOLD must be in (0, 1], got %v", c.RepetitionThreshold)
	}
	if c.MotionWindow < 1 {
		return fmt.Errorf("MOTION_WINDOW must be positive, got %d", c.MotionWindow)
	}
	if c.ClipFPS < 1 {
		return fmt.Errorf("CLIP_FPS must be positive, got %d", c.ClipFPS)
	}
	if c.RecognitionConcurrency < 1 {
		return fmt.Errorf("RECOGNITION_CONCURRENCY must be positive, got %d", c.RecognitionConcurrency)
	}
	return nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
