package clip

import (
	"context"
	"image"
)

// VideoInfo describes the video stream of a container
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
}

// FrameWriter receives grayscale frames in presentation order
type FrameWriter interface {
	WriteFrame(frame *image.Gray) error
	// Close flushes the container. The file is complete only after Close returns nil.
	Close() error
}

// Encoder creates video files from raw grayscale frames
type Encoder interface {
	Create(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error)
}

// FrameReader yields grayscale frames in presentation order
type FrameReader interface {
	// ReadFrame returns io.EOF after the last frame
	ReadFrame() (*image.Gray, error)
	Close() error
}

// Decoder opens video files for frame-by-frame reading
type Decoder interface {
	Open(ctx context.Context, path string) (FrameReader, VideoInfo, error)
}
