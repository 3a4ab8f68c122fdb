package landmark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/lexiqai/lipread-gateway/internal/observability"
)

// ErrEmptyImage is returned by Detect when given no image bytes
var ErrEmptyImage = errors.New("empty image")

// detectResponse is the sidecar's JSON body
type detectResponse struct {
	Faces []Face `json:"faces"`
	Error string `json:"error,omitempty"`
}

// HTTPClient implements Detector against a face-mesh sidecar.
// The sidecar keeps the face-mesh model warm between frames; one frame per request.
type HTTPClient struct {
	url        string
	httpClient *http.Client
}

// NewHTTPClient creates a landmark client for the sidecar at url
func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Detect posts the encoded frame and returns the first face, if any
func (c *HTTPClient) Detect(ctx context.Context, image []byte) (*Face, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("build landmark request: %w", err)
	}
	req.Header.Set("Content-Type", http.DetectContentType(image))
	if id := observability.CorrelationIDFromContext(ctx); id != "" {
		req.Header.Set("X-Correlation-ID", id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("landmark request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read landmark response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("landmark sidecar returned %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var out detectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("decode landmark response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("landmark sidecar: %s", out.Error)
	}
	if len(out.Faces) == 0 {
		return nil, nil
	}
	face := out.Faces[0]
	return &face, nil
}

// HealthCheck probes the sidecar; any HTTP answer below 500 counts as up.
func (c *HTTPClient) HealthCheck(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return false, fmt.Errorf("landmark sidecar returned %d", resp.StatusCode)
	}
	return true, nil
}
