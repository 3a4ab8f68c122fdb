package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Session metrics
	activeSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "lipread_gateway_sessions_active",
		Help: "Number of webcam sessions held in the registry",
	})

	sessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lipread_gateway_sessions_evicted_total",
		Help: "Total number of idle sessions evicted",
	})

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lipread_gateway_recording_frames",
		Help:    "Number of frames buffered per finalized recording",
		Buckets: []float64{10, 30, 60, 125, 250, 500, 1000},
	})

	// Frame metrics
	framesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lipread_gateway_frames_total",
		Help: "Total number of webcam frames processed",
	}, []string{"detection"}) // detection: "no_face", "face", "speaking"

	landmarkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lipread_gateway_landmark_latency_seconds",
		Help:    "Face landmark detection latency in seconds",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	})

	// Recognition metrics
	recognitionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lipread_gateway_recognition_requests_total",
		Help: "Total number of recognition requests",
	}, []string{"source", "status"}) // source: "webcam", "upload"

	recognitionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lipread_gateway_recognition_latency_seconds",
		Help:    "Recognition pipeline latency in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	resultsFiltered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lipread_gateway_results_filtered_total",
		Help: "Recognition results replaced by a sentinel",
	}, []string{"reason"}) // reason: "empty", "repetitive", "too_short"

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lipread_gateway_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lipread_gateway_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lipread_gateway_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})
)

// Metrics tracks metrics for a single recognition run
type Metrics struct {
	source           string
	startTime        time.Time
	landmarkStart    time.Time
	recognitionStart time.Time
	mu               sync.Mutex
}

// NewRecognitionMetrics creates a tracker for one recognition request.
// source is "webcam" or "upload".
func NewRecognitionMetrics(source string) *Metrics {
	return &Metrics{
		source:    source,
		startTime: time.Now(),
	}
}

// RecordRecognitionStart records the start of a recognizer call
func (m *Metrics) RecordRecognitionStart() {
	m.mu.Lock()
	m.recognitionStart = time.Now()
	m.mu.Unlock()
}

// RecordRecognitionEnd records the end of a recognizer call
func (m *Metrics) RecordRecognitionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recognitionStart.IsZero() {
		recognitionLatency.Observe(time.Since(m.recognitionStart).Seconds())
	}

	status := "success"
	if !success {
		status = "error"
	}
	recognitionRequests.WithLabelValues(m.source, status).Inc()
}

// RecordFiltered records a result replaced by a sentinel
func (m *Metrics) RecordFiltered(reason string) {
	resultsFiltered.WithLabelValues(reason).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	RecordError(errorType, component)
}

// RecordError records an error outside of a recognition run
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordFrame records one processed webcam frame and its detection outcome
func RecordFrame(faceDetected, speakingDetected bool, landmarkTime time.Duration) {
	detection := "no_face"
	switch {
	case speakingDetected:
		detection = "speaking"
	case faceDetected:
		detection = "face"
	}
	framesProcessed.WithLabelValues(detection).Inc()
	if landmarkTime > 0 {
		landmarkLatency.Observe(landmarkTime.Seconds())
	}
}

// RecordRecordingFrames records the size of a finalized recording
func RecordRecordingFrames(n int) {
	recordingDuration.Observe(float64(n))
}

// SetActiveSessions updates the session gauge
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// RecordSessionsEvicted adds to the eviction counter
func RecordSessionsEvicted(n int) {
	sessionsEvicted.Add(float64(n))
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
