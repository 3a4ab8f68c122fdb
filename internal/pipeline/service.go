// Package pipeline runs a finished recording or an uploaded video through clip
// assembly, recognition and result filtering.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/lexiqai/lipread-gateway/internal/clip"
	"github.com/lexiqai/lipread-gateway/internal/history"
	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/recognition"
	"github.com/lexiqai/lipread-gateway/internal/transcript"
)

// Recorder persists recognition outcomes
type Recorder interface {
	Append(ctx context.Context, e history.Entry) error
}

// Config holds pipeline configuration
type Config struct {
	RepetitionThreshold float64 // Dominant-word ratio at which output is filtered
	Concurrency         int64   // Recognitions allowed to run at once
}

// Outcome is the user-facing result of one recognition
type Outcome struct {
	Result   string // transcription or a sentinel message
	RawText  string // recognizer output before filtering
	Filtered bool
	Frames   int
}

// Service turns frames or an uploaded video into a transcription
type Service struct {
	assembler  *clip.Assembler
	recognizer recognition.Recognizer
	sem        *semaphore.Weighted
	threshold  float64
	history    Recorder
}

// NewService creates a pipeline. recorder may be nil.
func NewService(assembler *clip.Assembler, recognizer recognition.Recognizer, recorder Recorder, cfg Config) *Service {
	if cfg.RepetitionThreshold <= 0 {
		cfg.RepetitionThreshold = transcript.DefaultRepetitionThreshold
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Service{
		assembler:  assembler,
		recognizer: recognizer,
		sem:        semaphore.NewWeighted(cfg.Concurrency),
		threshold:  cfg.RepetitionThreshold,
		history:    recorder,
	}
}

// FinalizeSession recognizes a finished webcam recording. Recordings shorter
// than the clip minimum yield the "too short" message without touching the
// recognizer.
func (s *Service) FinalizeSession(ctx context.Context, sessionID string, frames []*image.Gray) (Outcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.FinalizeSession",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.Int("frames", len(frames)),
		))
	defer span.End()

	m := observability.NewRecognitionMetrics(history.SourceWebcam)
	logger := observability.LoggerFromContext(ctx)

	if len(frames) < s.assembler.MinFrames() {
		m.RecordFiltered("too_short")
		logger.Info().Str("session_id", sessionID).Int("frames", len(frames)).Msg("Recording too short")
		return Outcome{Result: transcript.RecordingTooShort, Frames: len(frames)}, nil
	}

	if err := s.acquire(ctx); err != nil {
		return Outcome{}, spanError(span, err)
	}
	defer s.sem.Release(1)

	started := time.Now()
	c, err := s.assembler.Assemble(ctx, frames)
	if err != nil {
		m.RecordError("clip_error", "clip")
		return Outcome{}, spanError(span, fmt.Errorf("assemble clip: %w", err))
	}
	defer removeClip(ctx, c)

	text, err := s.recognize(ctx, m, c.Path)
	if err != nil {
		return Outcome{}, spanError(span, err)
	}

	out := s.interpret(m, text, transcript.FilteredRepetitive)
	out.Frames = len(frames)
	s.record(ctx, history.Entry{
		SessionID: sessionID,
		Source:    history.SourceWebcam,
		Frames:    out.Frames,
		RawText:   out.RawText,
		Result:    out.Result,
		Filtered:  out.Filtered,
		LatencyMS: time.Since(started).Milliseconds(),
	})

	span.SetAttributes(attribute.Bool("filtered", out.Filtered))
	logger.Info().
		Str("session_id", sessionID).
		Int("frames", out.Frames).
		Bool("filtered", out.Filtered).
		Dur("elapsed", time.Since(started)).
		Msg("Session recognized")
	return out, nil
}

// ProcessUpload enhances and re-encodes the video at path, then recognizes it.
// The caller owns path; only the re-encoded clip is removed here.
func (s *Service) ProcessUpload(ctx context.Context, path string) (Outcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "pipeline.ProcessUpload")
	defer span.End()

	m := observability.NewRecognitionMetrics(history.SourceUpload)
	logger := observability.LoggerFromContext(ctx)

	if err := s.acquire(ctx); err != nil {
		return Outcome{}, spanError(span, err)
	}
	defer s.sem.Release(1)

	started := time.Now()
	c, err := s.assembler.Reencode(ctx, path)
	if errors.Is(err, clip.ErrEmptyVideo) {
		m.RecordFiltered(transcript.ReasonEmpty)
		return Outcome{Result: transcript.NoSpeech}, nil
	}
	if err != nil {
		m.RecordError("clip_error", "clip")
		return Outcome{}, spanError(span, fmt.Errorf("re-encode upload: %w", err))
	}
	defer removeClip(ctx, c)
	span.SetAttributes(attribute.Int("frames", c.Frames), attribute.Float64("fps", c.FPS))

	text, err := s.recognize(ctx, m, c.Path)
	if err != nil {
		return Outcome{}, spanError(span, err)
	}

	out := s.interpret(m, text, transcript.FilteredNoise)
	out.Frames = c.Frames
	s.record(ctx, history.Entry{
		Source:    history.SourceUpload,
		Frames:    out.Frames,
		RawText:   out.RawText,
		Result:    out.Result,
		Filtered:  out.Filtered,
		LatencyMS: time.Since(started).Milliseconds(),
	})

	logger.Info().
		Int("frames", out.Frames).
		Float64("fps", c.FPS).
		Bool("filtered", out.Filtered).
		Dur("elapsed", time.Since(started)).
		Msg("Upload recognized")
	return out, nil
}

func (s *Service) acquire(ctx context.Context) error {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for recognition slot: %w", err)
	}
	return nil
}

func (s *Service) recognize(ctx context.Context, m *observability.Metrics, path string) (string, error) {
	m.RecordRecognitionStart()
	text, err := s.recognizer.Recognize(ctx, path)
	m.RecordRecognitionEnd(err == nil)
	if err != nil {
		m.RecordError("recognition_error", "recognizer")
		return "", fmt.Errorf("recognize clip: %w", err)
	}
	return text, nil
}

// interpret maps recognizer output to the user-facing result. filteredMsg
// differs between webcam and upload.
func (s *Service) interpret(m *observability.Metrics, text, filteredMsg string) Outcome {
	if text == "" {
		m.RecordFiltered(transcript.ReasonEmpty)
		return Outcome{Result: transcript.NoSpeech}
	}
	res := transcript.Filter(text, s.threshold)
	if res.Filtered {
		m.RecordFiltered(res.Reason)
		return Outcome{Result: filteredMsg, RawText: text, Filtered: true}
	}
	return Outcome{Result: res.Text, RawText: text}
}

func (s *Service) record(ctx context.Context, e history.Entry) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(ctx, e); err != nil {
		logger := observability.LoggerFromContext(ctx)
		logger.Warn().Err(err).Msg("Failed to record recognition history")
		observability.RecordError("history_error", "history")
	}
}

func removeClip(ctx context.Context, c *clip.Clip) {
	if err := c.Close(); err != nil {
		logger := observability.LoggerFromContext(ctx)
		logger.Warn().Err(err).Str("path", c.Path).Msg("Failed to remove clip")
	}
}

func spanError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
