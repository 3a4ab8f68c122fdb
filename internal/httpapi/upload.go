package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/lexiqai/lipread-gateway/internal/observability"
)

var allowedVideoExts = map[string]bool{
	".mp4": true,
	".avi": true,
	".mov": true,
	".mkv": true,
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)
	file, header, err := r.FormFile("video")
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "File too large"})
		case errors.Is(err, http.ErrMissingFile) && hasEmptyFileField(r.MultipartForm):
			writeJSON(w, http.StatusOK, errorResponse{Error: "No file selected"})
		default:
			writeJSON(w, http.StatusOK, errorResponse{Error: "No video file provided"})
		}
		return
	}
	defer file.Close()

	if header.Filename == "" {
		writeJSON(w, http.StatusOK, errorResponse{Error: "No file selected"})
		return
	}
	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedVideoExts[ext] {
		writeJSON(w, http.StatusOK, errorResponse{Error: "Unsupported file format"})
		return
	}

	path, err := s.saveUpload(file, ext)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to save upload")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to save upload"})
		return
	}
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to remove upload")
		}
	}()

	logger.Info().Str("filename", header.Filename).Int64("size", header.Size).Msg("Processing uploaded video")
	out, err := s.pipeline.ProcessUpload(ctx, path)
	if err != nil {
		logger.Error().Err(err).Msg("Upload processing failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Success: true, Result: out.Result})
}

// saveUpload copies src to a uniquely named file in the upload dir
func (s *Server) saveUpload(src io.Reader, ext string) (string, error) {
	if err := os.MkdirAll(s.config.UploadDir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}
	path := filepath.Join(s.config.UploadDir, uuid.NewString()+ext)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return path, nil
}

// hasEmptyFileField reports whether the form carried a "video" part without a filename
func hasEmptyFileField(form *multipart.Form) bool {
	if form == nil {
		return false
	}
	_, ok := form.Value["video"]
	return ok
}
