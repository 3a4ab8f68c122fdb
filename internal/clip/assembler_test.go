package clip

import (
	"context"
	"errors"
	"image"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// memEncoder keeps written frames in memory and writes a placeholder file on Close.
type memEncoder struct {
	creates  int
	fps      float64
	width    int
	height   int
	frames   []*image.Gray
	failAt   int // fail on this WriteFrame call (1-based); 0 never fails
	closeErr error
}

func (e *memEncoder) Create(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error) {
	e.creates++
	e.fps, e.width, e.height = fps, width, height
	return &memWriter{enc: e, path: path}, nil
}

type memWriter struct {
	enc   *memEncoder
	path  string
	calls int
}

func (w *memWriter) WriteFrame(frame *image.Gray) error {
	w.calls++
	if w.enc.failAt > 0 && w.calls == w.enc.failAt {
		return errors.New("encoder broke")
	}
	w.enc.frames = append(w.enc.frames, frame)
	return nil
}

func (w *memWriter) Close() error {
	if err := os.WriteFile(w.path, []byte("mp4"), 0o600); err != nil {
		return err
	}
	return w.enc.closeErr
}

// sliceDecoder replays frames with fixed stream info
type sliceDecoder struct {
	info   VideoInfo
	frames []*image.Gray
	err    error
}

func (d *sliceDecoder) Open(ctx context.Context, path string) (FrameReader, VideoInfo, error) {
	if d.err != nil {
		return nil, VideoInfo{}, d.err
	}
	return &sliceReader{frames: d.frames}, d.info, nil
}

type sliceReader struct {
	frames []*image.Gray
	pos    int
}

func (r *sliceReader) ReadFrame() (*image.Gray, error) {
	if r.pos >= len(r.frames) {
		return nil, io.EOF
	}
	f := r.frames[r.pos]
	r.pos++
	return f, nil
}

func (r *sliceReader) Close() error { return nil }

// constantFrames returns n frames whose every pixel equals the frame index.
// Enhancement leaves constant frames unchanged, so output order is observable.
func constantFrames(n, w, h int) []*image.Gray {
	frames := make([]*image.Gray, n)
	for i := range frames {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for p := range img.Pix {
			img.Pix[p] = uint8(i)
		}
		frames[i] = img
	}
	return frames
}

func newTestAssembler(t *testing.T, enc Encoder, dec Decoder) *Assembler {
	t.Helper()
	return NewAssembler(enc, dec, Config{FPS: 25, MinFrames: 30, TempDir: t.TempDir(), Workers: 4})
}

func clipFilesIn(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "lipread_clip_*.mp4"))
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	return matches
}

func TestAssemble_TooShort(t *testing.T) {
	enc := &memEncoder{}
	a := newTestAssembler(t, enc, nil)

	_, err := a.Assemble(context.Background(), constantFrames(29, 4, 4))
	if !errors.Is(err, ErrClipTooShort) {
		t.Errorf("Expected ErrClipTooShort, got %v", err)
	}
	if enc.creates != 0 {
		t.Error("Expected encoder never invoked for a short recording")
	}
}

func TestAssemble_PreservesOrder(t *testing.T) {
	enc := &memEncoder{}
	a := newTestAssembler(t, enc, nil)

	clip, err := a.Assemble(context.Background(), constantFrames(40, 6, 4))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer clip.Close()

	if clip.Frames != 40 || len(enc.frames) != 40 {
		t.Fatalf("Expected 40 frames, got clip=%d encoder=%d", clip.Frames, len(enc.frames))
	}
	for i, f := range enc.frames {
		if f.Pix[0] != uint8(i) {
			t.Fatalf("Expected frame %d at position %d, got %d", i, i, f.Pix[0])
		}
	}
	if enc.fps != 25 || clip.FPS != 25 {
		t.Errorf("Expected 25 fps, got encoder=%v clip=%v", enc.fps, clip.FPS)
	}
	if enc.width != 6 || enc.height != 4 {
		t.Errorf("Expected 6x4 stream, got %dx%d", enc.width, enc.height)
	}
}

func TestAssemble_ExactlyMinimum(t *testing.T) {
	enc := &memEncoder{}
	a := newTestAssembler(t, enc, nil)

	clip, err := a.Assemble(context.Background(), constantFrames(30, 2, 2))
	if err != nil {
		t.Fatalf("Expected 30 frames accepted, got %v", err)
	}
	clip.Close()
}

func TestAssemble_ShapeMismatch(t *testing.T) {
	enc := &memEncoder{}
	a := newTestAssembler(t, enc, nil)

	frames := constantFrames(30, 4, 4)
	frames[12] = image.NewGray(image.Rect(0, 0, 5, 4))

	_, err := a.Assemble(context.Background(), frames)
	if !errors.Is(err, ErrFrameShape) {
		t.Errorf("Expected ErrFrameShape, got %v", err)
	}
	if enc.creates != 0 {
		t.Error("Expected encoder not started for mismatched frames")
	}
}

func TestAssemble_EncoderFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	enc := &memEncoder{failAt: 5}
	a := NewAssembler(enc, nil, Config{TempDir: dir})

	if _, err := a.Assemble(context.Background(), constantFrames(30, 4, 4)); err == nil {
		t.Fatal("Expected error from failing encoder")
	}
	if files := clipFilesIn(t, dir); len(files) != 0 {
		t.Errorf("Expected partial clip removed, found %v", files)
	}
}

func TestAssemble_CloseFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	enc := &memEncoder{closeErr: errors.New("muxer failed")}
	a := NewAssembler(enc, nil, Config{TempDir: dir})

	if _, err := a.Assemble(context.Background(), constantFrames(30, 4, 4)); err == nil {
		t.Fatal("Expected error from failing close")
	}
	if files := clipFilesIn(t, dir); len(files) != 0 {
		t.Errorf("Expected clip removed, found %v", files)
	}
}

func TestAssemble_CancelledContext(t *testing.T) {
	enc := &memEncoder{}
	a := newTestAssembler(t, enc, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Assemble(ctx, constantFrames(30, 4, 4)); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestClip_Close(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(&memEncoder{}, nil, Config{TempDir: dir})

	clip, err := a.Assemble(context.Background(), constantFrames(30, 4, 4))
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if _, err := os.Stat(clip.Path); err != nil {
		t.Fatalf("Expected clip file to exist: %v", err)
	}

	if err := clip.Close(); err != nil {
		t.Errorf("Expected no error on close, got %v", err)
	}
	if _, err := os.Stat(clip.Path); !os.IsNotExist(err) {
		t.Error("Expected clip file removed")
	}
	if err := clip.Close(); err != nil {
		t.Errorf("Expected second close to be a no-op, got %v", err)
	}
}

func TestReencode_UsesSourceFPS(t *testing.T) {
	enc := &memEncoder{}
	dec := &sliceDecoder{
		info:   VideoInfo{Width: 4, Height: 3, FPS: 30},
		frames: constantFrames(12, 4, 3),
	}
	a := newTestAssembler(t, enc, dec)

	clip, err := a.Reencode(context.Background(), "upload.mp4")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer clip.Close()

	if enc.fps != 30 {
		t.Errorf("Expected source fps 30, got %v", enc.fps)
	}
	// Uploads are not held to the webcam minimum
	if clip.Frames != 12 {
		t.Errorf("Expected 12 frames, got %d", clip.Frames)
	}
}

func TestReencode_UnknownFPSFallsBack(t *testing.T) {
	enc := &memEncoder{}
	dec := &sliceDecoder{
		info:   VideoInfo{Width: 2, Height: 2, FPS: 0},
		frames: constantFrames(3, 2, 2),
	}
	a := newTestAssembler(t, enc, dec)

	clip, err := a.Reencode(context.Background(), "upload.mp4")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer clip.Close()

	if enc.fps != 25 {
		t.Errorf("Expected fallback fps 25, got %v", enc.fps)
	}
}

func TestReencode_EmptyVideo(t *testing.T) {
	dir := t.TempDir()
	dec := &sliceDecoder{info: VideoInfo{Width: 2, Height: 2, FPS: 25}}
	a := NewAssembler(&memEncoder{}, dec, Config{TempDir: dir})

	_, err := a.Reencode(context.Background(), "upload.mp4")
	if !errors.Is(err, ErrEmptyVideo) {
		t.Errorf("Expected ErrEmptyVideo, got %v", err)
	}
	if files := clipFilesIn(t, dir); len(files) != 0 {
		t.Errorf("Expected no clip left behind, found %v", files)
	}
}

func TestReencode_OpenError(t *testing.T) {
	dec := &sliceDecoder{err: ErrNoVideoStream}
	a := newTestAssembler(t, &memEncoder{}, dec)

	if _, err := a.Reencode(context.Background(), "upload.mp4"); !errors.Is(err, ErrNoVideoStream) {
		t.Errorf("Expected ErrNoVideoStream, got %v", err)
	}
}

func TestReencode_NoDecoder(t *testing.T) {
	a := newTestAssembler(t, &memEncoder{}, nil)
	if _, err := a.Reencode(context.Background(), "upload.mp4"); err == nil {
		t.Error("Expected error without a decoder")
	}
}
