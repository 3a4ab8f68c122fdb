package vision

import (
	"context"
	"math"
	"time"

	"github.com/lexiqai/lipread-gateway/internal/landmark"
	"github.com/lexiqai/lipread-gateway/internal/observability"
)

// MouthIndices are the face-mesh landmark indices around the lips.
// They must match the landmark model's index scheme exactly.
var MouthIndices = [...]int{61, 84, 17, 314, 405, 320, 307, 375, 321, 308, 324, 318}

// DetectorConfig holds configuration for speaking detection
type DetectorConfig struct {
	Threshold float64 // Mean mouth displacement (normalized units) above which the speaker is talking
	Window    int     // Number of motion samples averaged
}

// DefaultDetectorConfig returns the default speaking detection configuration
func DefaultDetectorConfig() *DetectorConfig {
	return &DetectorConfig{
		Threshold: 0.003,
		Window:    10,
	}
}

// MotionState is the per-session detection state
type MotionState struct {
	FaceDetected     bool
	SpeakingDetected bool

	prevMouth []landmark.Point
	history   *MotionWindow
}

// NewMotionState creates an empty state with a window of the given size
func NewMotionState(window int) *MotionState {
	return &MotionState{history: NewMotionWindow(window)}
}

// Reset clears detection flags, previous landmarks and motion history
func (s *MotionState) Reset() {
	s.FaceDetected = false
	s.SpeakingDetected = false
	s.prevMouth = nil
	s.history.Clear()
}

// History returns the motion samples, oldest first
func (s *MotionState) History() []float64 {
	return s.history.Values()
}

// HasPreviousLandmarks reports whether a mouth landmark set is stored
func (s *MotionState) HasPreviousLandmarks() bool {
	return s.prevMouth != nil
}

// SpeakingDetector performs mouth-motion speaking detection
type SpeakingDetector struct {
	landmarks landmark.Detector
	config    *DetectorConfig
}

// NewSpeakingDetector creates a new speaking detector
func NewSpeakingDetector(landmarks landmark.Detector, config *DetectorConfig) *SpeakingDetector {
	if config == nil {
		config = DefaultDetectorConfig()
	}
	return &SpeakingDetector{
		landmarks: landmarks,
		config:    config,
	}
}

// NewState returns a MotionState sized for this detector's window
func (d *SpeakingDetector) NewState() *MotionState {
	return NewMotionState(d.config.Window)
}

// Update runs landmark detection on frame and folds the result into state.
// Detector failures never propagate: both flags drop to false and the
// motion history is left as it was.
// Returns: (faceDetected, speakingDetected)
func (d *SpeakingDetector) Update(ctx context.Context, frame *Frame, state *MotionState) (bool, bool) {
	start := time.Now()
	face, err := d.landmarks.Detect(ctx, frame.Encoded)
	elapsed := time.Since(start)

	if err != nil {
		logger := observability.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Face landmark detection failed")
		observability.RecordError("landmark_error", "landmarks")
		state.FaceDetected = false
		state.SpeakingDetected = false
		return false, false
	}

	if face == nil {
		// No face: keep the window intact so a dropped frame does not skew the average
		state.FaceDetected = false
		state.SpeakingDetected = false
		observability.RecordFrame(false, false, elapsed)
		return false, false
	}

	state.FaceDetected = true
	mouth := MouthPoints(face)

	if state.prevMouth != nil {
		if movement, ok := MeanDisplacement(state.prevMouth, mouth); ok {
			state.history.Push(movement)
			state.SpeakingDetected = state.history.Mean() > d.config.Threshold
		}
	}
	state.prevMouth = mouth

	observability.RecordFrame(true, state.SpeakingDetected, elapsed)
	return state.FaceDetected, state.SpeakingDetected
}

// MouthPoints picks MouthIndices out of a face mesh, skipping indices the mesh lacks.
func MouthPoints(face *landmark.Face) []landmark.Point {
	points := make([]landmark.Point, 0, len(MouthIndices))
	for _, idx := range MouthIndices {
		if idx < len(face.Landmarks) {
			points = append(points, face.Landmarks[idx])
		}
	}
	return points
}

// MeanDisplacement is the average Euclidean distance between corresponding
// points of two landmark sets. ok is false when the sets share no points.
func MeanDisplacement(prev, cur []landmark.Point) (float64, bool) {
	n := len(prev)
	if len(cur) < n {
		n = len(cur)
	}
	if n == 0 {
		return 0, false
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += math.Hypot(cur[i].X-prev[i].X, cur[i].Y-prev[i].Y)
	}
	return sum / float64(n), true
}
