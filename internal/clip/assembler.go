// Package clip turns buffered or uploaded frames into the enhanced video file
// handed to the recognizer.
package clip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/vision"
)

var (
	// ErrClipTooShort is returned when fewer than the minimum number of frames were buffered.
	ErrClipTooShort = errors.New("recording too short")
	// ErrFrameShape is returned when a frame's size differs from the first frame's.
	ErrFrameShape = errors.New("frame size mismatch")
	// ErrNoVideoStream is returned when an uploaded container has no video stream.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrEmptyVideo is returned when an uploaded video decodes to zero frames.
	ErrEmptyVideo = errors.New("video contains no frames")
)

// Config holds configuration for clip assembly
type Config struct {
	FPS       int    // Frame rate of webcam clips
	MinFrames int    // Minimum buffered frames for a webcam clip
	TempDir   string // Directory for clip files; os.TempDir() when empty
	Workers   int    // Parallel enhancement workers; GOMAXPROCS when <= 0
}

// DefaultConfig returns the default clip configuration
func DefaultConfig() Config {
	return Config{
		FPS:       25,
		MinFrames: 30,
	}
}

// Clip is an enhanced video file on disk. Close removes it.
type Clip struct {
	Path   string
	Frames int
	FPS    float64
}

// Close deletes the clip file. Safe to call more than once.
func (c *Clip) Close() error {
	if c == nil || c.Path == "" {
		return nil
	}
	err := os.Remove(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// Assembler enhances frames and encodes them into temporary clips
type Assembler struct {
	encoder Encoder
	decoder Decoder
	config  Config
}

// NewAssembler creates an assembler. decoder may be nil when uploads are not re-encoded.
func NewAssembler(encoder Encoder, decoder Decoder, config Config) *Assembler {
	if config.FPS <= 0 {
		config.FPS = DefaultConfig().FPS
	}
	if config.MinFrames <= 0 {
		config.MinFrames = DefaultConfig().MinFrames
	}
	if config.Workers <= 0 {
		config.Workers = runtime.GOMAXPROCS(0)
	}
	return &Assembler{encoder: encoder, decoder: decoder, config: config}
}

// MinFrames returns the minimum number of frames Assemble accepts
func (a *Assembler) MinFrames() int {
	return a.config.MinFrames
}

// Assemble enhances frames and writes them, in order, to a new clip at the
// configured frame rate. The caller owns the returned clip and must Close it.
func (a *Assembler) Assemble(ctx context.Context, frames []*image.Gray) (*Clip, error) {
	if len(frames) < a.config.MinFrames {
		return nil, fmt.Errorf("%w: %d frames, need %d", ErrClipTooShort, len(frames), a.config.MinFrames)
	}

	bounds := frames[0].Rect
	for i, f := range frames {
		if f.Rect.Dx() != bounds.Dx() || f.Rect.Dy() != bounds.Dy() {
			return nil, fmt.Errorf("%w: frame %d is %dx%d, expected %dx%d",
				ErrFrameShape, i, f.Rect.Dx(), f.Rect.Dy(), bounds.Dx(), bounds.Dy())
		}
	}

	enhanced := make([]*image.Gray, len(frames))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.config.Workers)
	for i := range frames {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			enhanced[i] = vision.Enhance(frames[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("enhance frames: %w", err)
	}

	return a.encode(ctx, bounds.Dx(), bounds.Dy(), float64(a.config.FPS), func(w FrameWriter) (int, error) {
		for i, f := range enhanced {
			if err := w.WriteFrame(f); err != nil {
				return i, err
			}
		}
		return len(enhanced), nil
	})
}

// Reencode decodes the video at src, enhances every frame and writes a new clip
// at the source frame rate.
func (a *Assembler) Reencode(ctx context.Context, src string) (*Clip, error) {
	if a.decoder == nil {
		return nil, errors.New("no video decoder configured")
	}
	reader, info, err := a.decoder.Open(ctx, src)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer reader.Close()

	fps := info.FPS
	if fps < 1 {
		logger := observability.LoggerFromContext(ctx)
		logger.Warn().
			Float64("fps", fps).
			Int("fallback_fps", a.config.FPS).
			Msg("Source frame rate unknown, using clip default")
		fps = float64(a.config.FPS)
	}

	return a.encode(ctx, info.Width, info.Height, fps, func(w FrameWriter) (int, error) {
		n := 0
		for {
			frame, err := reader.ReadFrame()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				return n, fmt.Errorf("decode frame %d: %w", n, err)
			}
			if err := w.WriteFrame(vision.Enhance(frame)); err != nil {
				return n, err
			}
			n++
		}
		if n == 0 {
			return 0, ErrEmptyVideo
		}
		return n, nil
	})
}

// encode creates the temp file, runs write against a fresh encoder stream and
// removes the file on any failure.
func (a *Assembler) encode(ctx context.Context, width, height int, fps float64, write func(FrameWriter) (int, error)) (*Clip, error) {
	file, err := os.CreateTemp(a.config.TempDir, "lipread_clip_*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create clip file: %w", err)
	}
	clip := &Clip{Path: file.Name(), FPS: fps}
	file.Close()

	writer, err := a.encoder.Create(ctx, clip.Path, width, height, fps)
	if err != nil {
		clip.Close()
		return nil, fmt.Errorf("start encoder: %w", err)
	}

	n, err := write(writer)
	if err != nil {
		writer.Close()
		clip.Close()
		return nil, fmt.Errorf("encode clip: %w", err)
	}
	if err := writer.Close(); err != nil {
		clip.Close()
		return nil, fmt.Errorf("finish clip: %w", err)
	}

	clip.Frames = n
	logger := observability.LoggerFromContext(ctx)
	logger.Debug().
		Str("path", clip.Path).
		Int("frames", n).
		Float64("fps", fps).
		Msg("Clip assembled")
	return clip, nil
}
