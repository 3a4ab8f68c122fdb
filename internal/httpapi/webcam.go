package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/lexiqai/lipread-gateway/internal/observability"
	"github.com/lexiqai/lipread-gateway/internal/session"
)

const (
	msgNoSession   = "No active session"
	msgNoFrameData = "No frame data provided"
)

type startResponse struct {
	Type      string `json:"type,omitempty"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

type toggleResponse struct {
	Type      string `json:"type,omitempty"`
	Success   bool   `json:"success"`
	Recording bool   `json:"recording"`
	Message   string `json:"message"`
}

type frameResponse struct {
	Type             string `json:"type,omitempty"`
	Success          bool   `json:"success"`
	FaceDetected     bool   `json:"face_detected"`
	SpeakingDetected bool   `json:"speaking_detected"`
	Recording        bool   `json:"recording"`
	FrameCount       int    `json:"frame_count"`
}

type resultResponse struct {
	Type    string `json:"type,omitempty"`
	Success bool   `json:"success"`
	Result  string `json:"result"`
}

type frameRequest struct {
	Frame string `json:"frame"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := presentedToken(r)
	issued := token == ""
	if issued {
		token = uuid.NewString()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	resp := s.startSession(ctx, token)
	if issued {
		// Clients that drop the cookie reach the session by address
		if err := s.sessions.Alias(addressKey(r), token); err != nil {
			logger := observability.LoggerFromContext(ctx)
			logger.Warn().Err(err).Str("session_id", token).Msg("Failed to alias session to caller address")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	status, body := s.toggle(r.Context(), sessionKey(r))
	writeJSON(w, status, body)
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	var req frameRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxFrameBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// Unparseable bodies carry no usable frame
		req.Frame = ""
	}
	status, body := s.processFrame(r.Context(), sessionKey(r), req.Frame)
	writeJSON(w, status, body)
}

func (s *Server) handleProcessSession(w http.ResponseWriter, r *http.Request) {
	status, body := s.finalize(r.Context(), sessionKey(r))
	writeJSON(w, status, body)
}

func (s *Server) startSession(ctx context.Context, key string) startResponse {
	snap := s.sessions.Start(ctx, key)
	return startResponse{Success: true, Message: "Session started", SessionID: snap.ID}
}

func (s *Server) toggle(ctx context.Context, key string) (int, any) {
	snap, err := s.sessions.Toggle(ctx, key)
	if err != nil {
		return sessionError(err)
	}
	msg := "Recording stopped"
	if snap.Recording {
		msg = "Recording started"
	}
	return http.StatusOK, toggleResponse{Success: true, Recording: snap.Recording, Message: msg}
}

func (s *Server) processFrame(ctx context.Context, key, payload string) (int, any) {
	snap, err := s.sessions.ProcessFrame(ctx, key, payload)
	if err != nil {
		return sessionError(err)
	}
	return http.StatusOK, frameResponse{
		Success:          true,
		FaceDetected:     snap.FaceDetected,
		SpeakingDetected: snap.SpeakingDetected,
		Recording:        snap.Recording,
		FrameCount:       snap.FrameCount,
	}
}

// finalize detaches the session's frames under its lock and recognizes them
// outside it, so the session can be re-armed while recognition runs.
func (s *Server) finalize(ctx context.Context, key string) (int, any) {
	frames, err := s.sessions.Take(ctx, key)
	if err != nil {
		return sessionError(err)
	}

	out, err := s.pipeline.FinalizeSession(ctx, key, frames)
	if err != nil {
		logger := observability.LoggerFromContext(ctx)
		logger.Error().Err(err).Str("session_id", key).Int("frames", len(frames)).Msg("Session processing failed")
		return http.StatusInternalServerError, errorResponse{Error: err.Error()}
	}
	return http.StatusOK, resultResponse{Success: true, Result: out.Result}
}

// sessionError maps input-validation failures to 200 with success=false
func sessionError(err error) (int, any) {
	switch {
	case errors.Is(err, session.ErrNoSession):
		return http.StatusOK, errorResponse{Error: msgNoSession}
	case errors.Is(err, session.ErrNoFrameData):
		return http.StatusOK, errorResponse{Error: msgNoFrameData}
	default:
		return http.StatusOK, errorResponse{Error: err.Error()}
	}
}
