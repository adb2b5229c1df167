package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/buckneer/beastie-club/auth"
	apperrors "github.com/buckneer/beastie-club/errors"
	"github.com/buckneer/beastie-club/pkg/eligibility"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	EventTypeConnected = "connected"
	EventTypeUpdated   = "updated"
	EventTypeHeartbeat = "heartbeat"
)

// EligibilityHandler bridges the eligibility service to HTTP routes
// (SSE + WebSocket).
type EligibilityHandler struct {
	svc             *eligibility.Service
	app             *App
	logger          zerolog.Logger
	heartbeatPeriod time.Duration
	upgrader        websocket.Upgrader
}

// NewEligibilityHandler creates an eligibility streaming handler.
func NewEligibilityHandler(app *App, svc *eligibility.Service) *EligibilityHandler {
	return &EligibilityHandler{
		svc:             svc,
		app:             app,
		logger:          app.logger.With().Str("handler", "eligibility").Logger(),
		heartbeatPeriod: 30 * time.Second,
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// StreamEvent is the wire envelope for streamed eligibility updates.
type StreamEvent struct {
	Type      string              `json:"type"`
	Timestamp int64               `json:"timestamp"`
	Update    *eligibility.Update `json:"update,omitempty"`
}

// StreamUpdates opens an SSE connection and streams eligibility updates.
// Route: GET /api/wheel/updates
func (h *EligibilityHandler) StreamUpdates(c *gin.Context) {
	identity, ok := auth.GetIdentity(c)
	if !ok {
		HandleAppError(c, apperrors.New(apperrors.ErrIdentityRequired, "authentication token or X-Device-ID header required"))
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
	c.Writer.WriteHeader(http.StatusOK)

	sub := h.svc.Subscribe(c.Request.Context(), identity)
	defer h.svc.Unsubscribe(sub)

	sender := &sseSender{writer: c.Writer}
	h.stream(c, sub, sender, nil)
}

// StreamUpdatesWebSocket opens a WebSocket connection and streams
// eligibility updates.
// Route: GET /api/wheel/updates/ws
func (h *EligibilityHandler) StreamUpdatesWebSocket(c *gin.Context) {
	identity, ok := auth.GetIdentity(c)
	if !ok {
		HandleAppError(c, apperrors.New(apperrors.ErrIdentityRequired, "authentication token or X-Device-ID header required"))
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade to WebSocket")
		return
	}
	defer conn.Close() //nolint:errcheck

	writeDeadline := 10 * time.Second
	conn.SetWriteDeadline(time.Now().Add(writeDeadline)) //nolint:errcheck

	done := make(chan struct{})

	// Detect connection close
	go func() {
		defer close(done)
		conn.SetReadDeadline(time.Now().Add(10 * time.Minute)) //nolint:errcheck
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket connection closed unexpectedly")
			} else {
				h.logger.Debug().Err(err).Msg("WebSocket closed normally")
			}
		}
	}()

	// Send ping to keep connection alive
	pingTicker := time.NewTicker(30 * time.Second)
	go func() {
		defer pingTicker.Stop()
		for {
			select {
			case <-done:
				return
			case <-pingTicker.C:
				deadline := time.Now().Add(5 * time.Second)
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, deadline); err != nil {
					h.logger.Debug().Err(err).Msg("Failed to send ping")
					return
				}
			}
		}
	}()

	sub := h.svc.Subscribe(c.Request.Context(), identity)
	defer h.svc.Unsubscribe(sub)

	sender := &wsSender{
		conn:          conn,
		done:          done,
		logger:        h.logger,
		writeDeadline: writeDeadline,
	}
	h.stream(c, sub, sender, done)
}

// stream pumps subscription updates and heartbeats to the sender until the
// connection drops.
func (h *EligibilityHandler) stream(c *gin.Context, sub *eligibility.Subscription, sender messageSender, done <-chan struct{}) {
	if err := sender.Send(&StreamEvent{
		Type:      EventTypeConnected,
		Timestamp: time.Now().Unix(),
	}); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send connected event, stopping stream")
		return
	}

	heartbeat := time.NewTicker(h.heartbeatPeriod)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-done:
			h.logger.Debug().Msg("WebSocket connection closed, stopping stream")
			return
		case <-heartbeat.C:
			if err := sender.Send(&StreamEvent{
				Type:      EventTypeHeartbeat,
				Timestamp: time.Now().Unix(),
			}); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to send heartbeat, stopping stream")
				return
			}
		case update, ok := <-sub.Channel:
			if !ok {
				return
			}
			if err := sender.Send(&StreamEvent{
				Type:      EventTypeUpdated,
				Timestamp: time.Now().Unix(),
				Update:    &update,
			}); err != nil {
				h.logger.Warn().Err(err).Msg("Failed to send update, stopping stream")
				return
			}
		}
	}
}

// messageSender interface for sending messages (SSE or WebSocket).
type messageSender interface {
	Send(*StreamEvent) error
}

// sseSender sends messages via SSE.
type sseSender struct {
	writer http.ResponseWriter
}

func (s *sseSender) Send(event *StreamEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = s.writer.Write([]byte("data: " + string(payload) + "\n\n"))
	if err != nil {
		return err
	}
	s.writer.(http.Flusher).Flush()
	return nil
}

// wsSender sends messages via WebSocket.
type wsSender struct {
	conn          *websocket.Conn
	done          <-chan struct{}
	logger        zerolog.Logger
	writeDeadline time.Duration
}

func (s *wsSender) Send(event *StreamEvent) error {
	select {
	case <-s.done:
		s.logger.Debug().Str("event_type", event.Type).Msg("Connection already closed, skipping send")
		return io.EOF
	default:
	}

	deadline := time.Now().Add(s.writeDeadline)
	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to set write deadline")
	}

	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error().Err(err).Str("event_type", event.Type).Msg("Failed to marshal event")
		return err
	}

	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.logger.Warn().
				Err(err).
				Str("event_type", event.Type).
				Msg("WebSocket WriteMessage failed: connection closed (EOF)")
		} else {
			s.logger.Warn().
				Err(err).
				Str("event_type", event.Type).
				Msg("WebSocket WriteMessage failed")
		}
		return err
	}

	return nil
}
