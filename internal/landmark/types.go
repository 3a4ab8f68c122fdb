package landmark

import "context"

// Point is a facial landmark in normalized image coordinates (0..1).
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Face is one detected face mesh, indexed by the face-mesh landmark scheme.
type Face struct {
	Landmarks []Point `json:"landmarks"`
}

// Detector is the interface for face-landmark backends
type Detector interface {
	// Detect runs the face mesh on an encoded image (JPEG, PNG or WebP).
	// Returns nil when no face is present.
	Detect(ctx context.Context, image []byte) (*Face, error)
}

// DetectorFunc adapts a plain function to the Detector interface.
type DetectorFunc func(ctx context.Context, image []byte) (*Face, error)

// Detect calls f(ctx, image).
func (f DetectorFunc) Detect(ctx context.Context, image []byte) (*Face, error) {
	return f(ctx, image)
}
