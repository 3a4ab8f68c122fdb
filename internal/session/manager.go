package session

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/vision"
)

// Manager owns all sessions keyed by client token. The map has its own lock;
// each session serializes its operations on its own mutex, so a slow landmark
// call for one client never blocks another.
type Manager struct {
	detector *vision.SpeakingDetector
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	sessions map[string]*Session
	aliases  map[string]string // secondary key -> session key
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides time.Now (tests)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithTTL sets the idle time after which Sweep evicts a session. Zero disables eviction.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) { m.ttl = ttl }
}

// NewManager creates an empty session registry
func NewManager(detector *vision.SpeakingDetector, opts ...Option) *Manager {
	m := &Manager{
		detector: detector,
		now:      time.Now,
		sessions: make(map[string]*Session),
		aliases:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) lookup(key string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[key]
	if !ok {
		if target, aliased := m.aliases[key]; aliased {
			s, ok = m.sessions[target]
		}
	}
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNoSession
	}
	s.touch(m.now())
	return s, nil
}

// Start creates a fresh Idle session for key, replacing any existing one.
func (m *Manager) Start(ctx context.Context, key string) Snapshot {
	s := newSession(key, m.detector.NewState(), m.now())

	m.mu.Lock()
	m.sessions[key] = s
	delete(m.aliases, key)
	n := len(m.sessions)
	m.mu.Unlock()

	observability.SetActiveSessions(n)
	logger := observability.LoggerFromContext(ctx)
	logger.Info().Str("session_id", key).Msg("Session started")

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// Alias makes alias resolve to the session started under key, replacing any
// session or alias previously held by alias. The alias is dropped when the
// session is evicted.
func (m *Manager) Alias(alias, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[key]; !ok {
		return ErrNoSession
	}
	if alias == key {
		return nil
	}
	delete(m.sessions, alias)
	m.aliases[alias] = key
	return nil
}

// Toggle flips recording. Starting a recording discards frames and motion
// state from any previous take; stopping keeps the frames for finalize.
func (m *Manager) Toggle(ctx context.Context, key string) (Snapshot, error) {
	s, err := m.lookup(key)
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	logger := observability.LoggerFromContext(ctx)
	if !s.recording {
		s.reset()
		s.recording = true
		logger.Info().Str("session_id", key).Msg("Recording started")
	} else {
		s.recording = false
		observability.RecordRecordingFrames(len(s.frames))
		logger.Info().Str("session_id", key).Int("frames", len(s.frames)).Msg("Recording stopped")
	}
	return s.snapshot(), nil
}

// ProcessFrame decodes a base64 frame, updates speaking detection and buffers
// the grayscale frame. Outside a recording the frame is ignored without being
// decoded and both detection flags are reported false.
func (m *Manager) ProcessFrame(ctx context.Context, key, payload string) (Snapshot, error) {
	s, err := m.lookup(key)
	if err != nil {
		return Snapshot{}, err
	}
	if payload == "" {
		return Snapshot{}, ErrNoFrameData
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recording {
		return Snapshot{ID: s.id, State: StateIdle, FrameCount: len(s.frames)}, nil
	}

	frame, err := vision.DecodeBase64Frame(payload)
	if err != nil {
		return Snapshot{}, fmt.Errorf("decode frame: %w", err)
	}

	m.detector.Update(ctx, frame, s.motion)
	s.frames = append(s.frames, frame.Gray())
	return s.snapshot(), nil
}

// Take detaches the buffered frames and returns the session to Idle.
// The session is reset on every call, whatever the frame count.
func (m *Manager) Take(ctx context.Context, key string) ([]*image.Gray, error) {
	s, err := m.lookup(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	frames := s.frames
	s.reset()
	return frames, nil
}

// Get returns the session's current snapshot
func (m *Manager) Get(key string) (Snapshot, error) {
	s, err := m.lookup(key)
	if err != nil {
		return Snapshot{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Len returns the number of live sessions
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep evicts sessions idle for longer than the TTL and returns how many were removed.
func (m *Manager) Sweep() int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().Add(-m.ttl)

	m.mu.Lock()
	evicted := 0
	for key, s := range m.sessions {
		if s.idleSince().Before(cutoff) {
			delete(m.sessions, key)
			evicted++
		}
	}
	for alias, target := range m.aliases {
		if _, ok := m.sessions[target]; !ok {
			delete(m.aliases, alias)
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if evicted > 0 {
		observability.RecordSessionsEvicted(evicted)
	}
	observability.SetActiveSessions(n)
	return evicted
}

// Run sweeps every interval until ctx is done
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	if m.ttl <= 0 || interval <= 0 {
		return
	}
	logger := observability.LoggerFromContext(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Info().Int("evicted", n).Int("active", m.Len()).Msg("Evicted idle sessions")
			}
		}
	}
}
