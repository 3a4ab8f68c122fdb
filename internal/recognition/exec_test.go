package recognition

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	path := filepath.Join(t.TempDir(), "infer.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestExecRecognizer_JSON(t *testing.T) {
	script := writeScript(t, `[ "$1" = "--video" ] || exit 2
echo '{"text": "hello world"}'
`)
	r, err := NewExecRecognizer(script)
	require.NoError(t, err)

	text, err := r.Recognize(context.Background(), "/tmp/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestExecRecognizer_PlainText(t *testing.T) {
	script := writeScript(t, `echo "  see you later  "
`)
	r, err := NewExecRecognizer(script)
	require.NoError(t, err)

	text, err := r.Recognize(context.Background(), "/tmp/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, "see you later", text)
}

func TestExecRecognizer_PassesVideoPath(t *testing.T) {
	script := writeScript(t, `printf '{"text": "%s"}' "$2"
`)
	r, err := NewExecRecognizer(script)
	require.NoError(t, err)

	text, err := r.Recognize(context.Background(), "/data/clip 1.mp4")
	require.NoError(t, err)
	assert.Equal(t, "/data/clip 1.mp4", text)
}

func TestExecRecognizer_Failure(t *testing.T) {
	script := writeScript(t, `echo "model weights missing" >&2
exit 3
`)
	r, err := NewExecRecognizer(script)
	require.NoError(t, err)

	_, err = r.Recognize(context.Background(), "/tmp/clip.mp4")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model weights missing")
}

func TestExecRecognizer_ContextDeadline(t *testing.T) {
	script := writeScript(t, `exec sleep 5
`)
	r, err := NewExecRecognizer(script)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = r.Recognize(ctx, "/tmp/clip.mp4")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestNewExecRecognizer_Invalid(t *testing.T) {
	_, err := NewExecRecognizer("")
	assert.Error(t, err)

	_, err = NewExecRecognizer(`python "unterminated`)
	assert.Error(t, err)
}

func TestExecRecognizer_HealthCheck(t *testing.T) {
	r, err := NewExecRecognizer("definitely-not-a-real-binary-xyz --flag")
	require.NoError(t, err)

	ok, err := r.HealthCheck(context.Background())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestParseOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "empty", out: "", want: ""},
		{name: "blank lines", out: "\n\n", want: ""},
		{name: "plain", out: "HELLO\n", want: "HELLO"},
		{name: "json", out: `{"text": " good morning "}`, want: "good morning"},
		{name: "json empty text", out: `{"text": ""}`, want: ""},
		{name: "json error", out: `{"error": "cuda out of memory"}`, wantErr: true},
		{name: "broken json", out: `{"text": `, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseOutput([]byte(tt.out))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
