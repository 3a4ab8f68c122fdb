package clip

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/mattn/go-shellwords"
)

// FFmpeg encodes and decodes video by piping raw 8-bit gray frames through
// ffmpeg and reading stream metadata with ffprobe.
type FFmpeg struct {
	ffmpeg  []string
	ffprobe []string
}

// NewFFmpeg parses the ffmpeg and ffprobe command lines. Each may carry
// leading arguments, e.g. "nice -n 10 ffmpeg".
func NewFFmpeg(ffmpegCmd, ffprobeCmd string) (*FFmpeg, error) {
	ffmpeg, err := parseCommand(ffmpegCmd)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	ffprobe, err := parseCommand(ffprobeCmd)
	if err != nil {
		return nil, fmt.Errorf("parse ffprobe command: %w", err)
	}
	return &FFmpeg{ffmpeg: ffmpeg, ffprobe: ffprobe}, nil
}

func parseCommand(cmd string) ([]string, error) {
	args, err := shellwords.NewParser().Parse(cmd)
	if err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return nil, errors.New("command is empty")
	}
	return args, nil
}

func (f *FFmpeg) command(ctx context.Context, base []string, args ...string) *exec.Cmd {
	full := append(append([]string{}, base[1:]...), args...)
	return exec.CommandContext(ctx, base[0], full...)
}

// Create starts an ffmpeg process writing an MPEG-4 Part 2 (mp4v) file at path.
func (f *FFmpeg) Create(ctx context.Context, path string, width, height int, fps float64) (FrameWriter, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid frame size %dx%d", width, height)
	}
	cmd := f.command(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-r", strconv.FormatFloat(fps, 'f', -1, 64),
		"-i", "pipe:0",
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "mpeg4", "-q:v", "2",
		"-pix_fmt", "yuv420p",
		path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegWriter{
		cmd:    cmd,
		stdin:  stdin,
		stderr: &stderr,
		width:  width,
		height: height,
	}, nil
}

type ffmpegWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *bytes.Buffer
	width  int
	height int
	closed bool
}

func (w *ffmpegWriter) WriteFrame(frame *image.Gray) error {
	if frame.Rect.Dx() != w.width || frame.Rect.Dy() != w.height {
		return fmt.Errorf("frame size %dx%d does not match stream %dx%d",
			frame.Rect.Dx(), frame.Rect.Dy(), w.width, w.height)
	}
	for y := 0; y < w.height; y++ {
		row := frame.Pix[y*frame.Stride : y*frame.Stride+w.width]
		if _, err := w.stdin.Write(row); err != nil {
			// stderr is still being copied until Wait; Close reports it
			return fmt.Errorf("write frame to ffmpeg: %w", err)
		}
	}
	return nil
}

func (w *ffmpegWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	closeErr := w.stdin.Close()
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg encode failed: %w: %s", err, strings.TrimSpace(w.stderr.String()))
	}
	return closeErr
}

// Open probes path and starts an ffmpeg process decoding it to gray frames.
func (f *FFmpeg) Open(ctx context.Context, path string) (FrameReader, VideoInfo, error) {
	info, err := f.Probe(ctx, path)
	if err != nil {
		return nil, VideoInfo{}, err
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := f.command(ctx, f.ffmpeg,
		"-hide_banner", "-loglevel", "error",
		// frames must match the stored dimensions Probe reports
		"-noautorotate",
		"-i", path,
		"-an",
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"pipe:1",
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, VideoInfo{}, fmt.Errorf("ffmpeg stdout: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, VideoInfo{}, fmt.Errorf("start ffmpeg: %w", err)
	}
	return &ffmpegReader{
		cmd:    cmd,
		stdout: stdout,
		stderr: &stderr,
		cancel: cancel,
		width:  info.Width,
		height: info.Height,
	}, info, nil
}

type ffmpegReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *bytes.Buffer
	cancel context.CancelFunc
	width  int
	height int
	done   bool
}

func (r *ffmpegReader) ReadFrame() (*image.Gray, error) {
	if r.done {
		return nil, io.EOF
	}
	frame := image.NewGray(image.Rect(0, 0, r.width, r.height))
	_, err := io.ReadFull(r.stdout, frame.Pix)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, io.EOF):
		r.done = true
		if waitErr := r.cmd.Wait(); waitErr != nil {
			return nil, fmt.Errorf("ffmpeg decode failed: %w: %s", waitErr, strings.TrimSpace(r.stderr.String()))
		}
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		// trailing partial frame is dropped
		r.done = true
		_ = r.cmd.Wait()
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame from ffmpeg: %w", err)
	}
}

func (r *ffmpegReader) Close() error {
	r.cancel()
	if !r.done {
		r.done = true
		_ = r.cmd.Wait()
	}
	return nil
}

type probeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
}

// Probe reads the first video stream's dimensions and frame rate.
func (f *FFmpeg) Probe(ctx context.Context, path string) (VideoInfo, error) {
	cmd := f.command(ctx, f.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,avg_frame_rate",
		"-of", "json",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return VideoInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return VideoInfo{}, ErrNoVideoStream
	}
	s := out.Streams[0]
	fps := ParseFrameRate(s.AvgFrameRate)
	if fps <= 0 {
		fps = ParseFrameRate(s.RFrameRate)
	}
	return VideoInfo{Width: s.Width, Height: s.Height, FPS: fps}, nil
}

// ParseFrameRate parses ffprobe rates such as "30000/1001" or "25". Returns 0 when unparseable.
func ParseFrameRate(rate string) float64 {
	num, den, found := strings.Cut(strings.TrimSpace(rate), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
