package landmark

import (
	"context"
	"sync"
)

// Static is a Detector that replays a fixed sequence of faces, repeating the
// last entry once the sequence is exhausted. A nil entry means no face.
// Used by tests.
type Static struct {
	mu    sync.Mutex
	faces []*Face
	err   error
	calls int
}

// NewStatic creates a detector replaying faces in order
func NewStatic(faces ...*Face) *Static {
	return &Static{faces: faces}
}

// NewFailing creates a detector that always returns err
func NewFailing(err error) *Static {
	return &Static{err: err}
}

// Detect returns the next face in the sequence
func (s *Static) Detect(ctx context.Context, image []byte) (*Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.calls
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if len(s.faces) == 0 {
		return nil, nil
	}
	if i >= len(s.faces) {
		i = len(s.faces) - 1
	}
	return s.faces[i], nil
}

// Calls returns how many times Detect ran
func (s *Static) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// HealthCheck always succeeds
func (s *Static) HealthCheck(ctx context.Context) (bool, error) {
	return true, nil
}
