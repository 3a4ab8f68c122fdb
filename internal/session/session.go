// Package session tracks webcam recording sessions: the buffered frames of the
// current take and the speaking-detection state that goes with them.
package session

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lexiqai/lipread-gateway/internal/vision"
)

var (
	// ErrNoSession is returned for operations on a key with no started session.
	ErrNoSession = errors.New("no active session")
	// ErrNoFrameData is returned when a frame request carries no image.
	ErrNoFrameData = errors.New("no frame data provided")
)

// State is the coarse lifecycle position of a session
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// Snapshot is a point-in-time copy of a session's client-visible fields
type Snapshot struct {
	ID               string
	State            State
	Recording        bool
	FaceDetected     bool
	SpeakingDetected bool
	FrameCount       int
}

// Session is one client's recording state. All fields are guarded by mu.
type Session struct {
	mu        sync.Mutex
	id        string
	recording bool
	frames    []*image.Gray
	motion    *vision.MotionState
	createdAt time.Time

	// lastSeen is read by the sweeper without taking mu
	lastSeen atomic.Int64
}

func newSession(id string, motion *vision.MotionState, now time.Time) *Session {
	s := &Session{
		id:        id,
		motion:    motion,
		createdAt: now,
	}
	s.touch(now)
	return s
}

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

func (s *Session) idleSince() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// reset returns the session to Idle with no frames or detection state.
// Caller holds mu.
func (s *Session) reset() {
	s.recording = false
	s.frames = nil
	s.motion.Reset()
}

// snapshot copies the visible fields. Caller holds mu.
func (s *Session) snapshot() Snapshot {
	state := StateIdle
	if s.recording {
		state = StateRecording
	}
	return Snapshot{
		ID:               s.id,
		State:            state,
		Recording:        s.recording,
		FaceDetected:     s.motion.FaceDetected,
		SpeakingDetected: s.motion.SpeakingDetected,
		FrameCount:       len(s.frames),
	}
}
