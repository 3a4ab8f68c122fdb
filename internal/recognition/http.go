package recognition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/resilience"
)

// HTTPRecognizer posts the clip as multipart field "video" to a model server
// answering {"text": "..."}.
type HTTPRecognizer struct {
	url        string
	httpClient *http.Client
}

// NewHTTPRecognizer creates a client for the model server at url.
// Deadlines come from the request context.
func NewHTTPRecognizer(url string) *HTTPRecognizer {
	return &HTTPRecognizer{
		url:        url,
		httpClient: &http.Client{},
	}
}

// Recognize uploads videoPath and returns the transcription
func (r *HTTPRecognizer) Recognize(ctx context.Context, videoPath string) (string, error) {
	body, contentType, err := multipartVideo(videoPath)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, body)
	if err != nil {
		return "", fmt.Errorf("build recognizer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognizer request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read recognizer response: %w", err)
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return "", resilience.NewRetryableError(
			fmt.Errorf("recognizer returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw)))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("recognizer returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode recognizer response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("recognizer: %s", out.Error)
	}
	return out.Text, nil
}

func multipartVideo(videoPath string) (*bytes.Buffer, string, error) {
	f, err := os.Open(videoPath)
	if err != nil {
		return nil, "", fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("video", filepath.Base(videoPath))
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("copy clip: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

// HealthCheck probes the model server; any HTTP answer below 500 counts as up.
func (r *HTTPRecognizer) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return false, err
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("recognizer returned %d", resp.StatusCode)
	}
	return true, nil
}

// Close releases idle connections
func (r *HTTPRecognizer) Close() error {
	r.httpClient.CloseIdleConnections()
	return nil
}
