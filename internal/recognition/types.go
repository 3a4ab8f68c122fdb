// Package recognition invokes the lip reading model on an assembled clip.
// The model runs out of process; backends differ only in how the clip path
// or bytes reach it.
package recognition

import (
	"context"
)

// Recognizer transcribes the speech visible in a video file.
// An empty string means the model produced nothing.
type Recognizer interface {
	Recognize(ctx context.Context, videoPath string) (string, error)
}

// Func adapts a plain function to Recognizer
type Func func(ctx context.Context, videoPath string) (string, error)

// Recognize calls f
func (f Func) Recognize(ctx context.Context, videoPath string) (string, error) {
	return f(ctx, videoPath)
}

// Backend is a Recognizer with a readiness probe and owned resources
type Backend interface {
	Recognizer
	HealthCheck(ctx context.Context) (bool, error)
	Close() error
}

// response is the JSON body shared by the exec and HTTP backends
type response struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}
