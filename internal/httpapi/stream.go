package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/lexiqai/lipread-gateway/internal/observability"
)

var upgrader = websocket.Upgrader{
	// The UI is served from this origin or a local dev server
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Stream message types
const (
	MsgStart    = "start"
	MsgFrame    = "frame"
	MsgToggle   = "toggle"
	MsgFinalize = "finalize"
	MsgError    = "error"
)

// StreamMessage is a client message on the webcam stream
type StreamMessage struct {
	Type  string `json:"type"`
	Frame string `json:"frame,omitempty"`
}

// handleStream runs session operations over one WebSocket. The session key
// is resolved once at upgrade and replies mirror the REST payloads.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	key := sessionKey(r)
	ctx := r.Context()
	logger := observability.LoggerFromContext(ctx).With().Str("session_id", key).Logger()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to upgrade connection to WebSocket")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameBodyBytes)
	logger.Info().Msg("Webcam stream connected")

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket read error")
			}
			logger.Info().Msg("Webcam stream closed")
			return
		}

		var msg StreamMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if err := conn.WriteJSON(errorResponse{Type: MsgError, Error: "Invalid message"}); err != nil {
				return
			}
			continue
		}

		var reply any
		switch msg.Type {
		case MsgStart:
			reply = s.startSession(ctx, key)
		case MsgFrame:
			_, reply = s.processFrame(ctx, key, msg.Frame)
		case MsgToggle:
			_, reply = s.toggle(ctx, key)
		case MsgFinalize:
			_, reply = s.finalize(ctx, key)
		default:
			reply = errorResponse{Error: "Unknown message type: " + msg.Type}
			msg.Type = MsgError
		}

		if err := conn.WriteJSON(tagged(reply, msg.Type)); err != nil {
			logger.Warn().Err(err).Msg("WebSocket write error")
			return
		}
	}
}

// tagged sets the message type on a reply
func tagged(reply any, typ string) any {
	switch r := reply.(type) {
	case startResponse:
		r.Type = typ
		return r
	case toggleResponse:
		r.Type = typ
		return r
	case frameResponse:
		r.Type = typ
		return r
	case resultResponse:
		r.Type = typ
		return r
	case errorResponse:
		r.Type = typ
		return r
	}
	return reply
}
