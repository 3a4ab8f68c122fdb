// Package vision holds the per-frame image work: decoding client frames,
// mouth-motion speaking detection and the enhancement applied before recognition.
package vision

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"

	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	_ "golang.org/x/image/webp" // Register WebP decoder
)

// ErrEmptyFrame is returned when the transport payload carries no image bytes.
var ErrEmptyFrame = errors.New("empty frame data")

// Frame is one decoded webcam frame
type Frame struct {
	// Encoded is the compressed image as received; forwarded to the landmark sidecar as-is.
	Encoded []byte
	// Format is the decoder that recognized Encoded ("jpeg", "png", "webp", ...).
	Format string
	// Color is the decoded color image.
	Color image.Image
}

// DecodeBase64Frame decodes a transport-encoded frame: base64 text (optionally a
// data URL such as "data:image/jpeg;base64,...") holding compressed image bytes.
func DecodeBase64Frame(payload string) (*Frame, error) {
	payload = strings.TrimSpace(payload)
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	if payload == "" {
		return nil, ErrEmptyFrame
	}

	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 frame: %w", err)
	}
	return DecodeFrame(raw)
}

// DecodeFrame decodes compressed image bytes (JPEG, PNG, GIF or WebP)
func DecodeFrame(raw []byte) (*Frame, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyFrame
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return &Frame{Encoded: raw, Format: format, Color: img}, nil
}

// Gray converts the frame to 8-bit luma, origin at (0,0).
func (f *Frame) Gray() *image.Gray {
	return ToGray(f.Color)
}

// ToGray converts any image to an *image.Gray anchored at the origin
func ToGray(img image.Image) *image.Gray {
	b := img.Bounds()
	if g, ok := img.(*image.Gray); ok && b.Min == (image.Point{}) {
		return g
	}
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}
