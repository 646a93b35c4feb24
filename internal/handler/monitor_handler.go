package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/examly/examly-backend/internal/middleware"
	"github.com/examly/examly-backend/internal/repository"
	"github.com/examly/examly-backend/internal/service"
	ws "github.com/examly/examly-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// MonitorHandler streams live attempt events for one session to its author.
type MonitorHandler struct {
	sessions service.SessionStore
	stream   *repository.EventStream
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewMonitorHandler creates a new MonitorHandler.
func NewMonitorHandler(sessions service.SessionStore, stream *repository.EventStream, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		sessions: sessions,
		stream:   stream,
		log:      log.With().Str("component", "monitor_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionMonitor godoc
// WS /ws/v1/sessions/:session_id/monitor?token=...
// Upgrades to WebSocket and relays the session's attempt events: starts,
// answer saves, submits, expiries.
func (h *MonitorHandler) SessionMonitor(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, ok := pathUUID(c, "session_id")
	if !ok {
		return
	}

	// The session must resolve before we hold a subscription open for it.
	if _, err := h.sessions.GetByID(c.Request.Context(), sessionID); err != nil {
		failAttempt(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	monLog := h.log.With().
		Int("author_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	monLog.Info().Msg("Monitor connected")

	sub := h.stream.SubscribeMonitor(c.Request.Context(), sessionID)
	defer sub.Close()

	// Reader goroutine: forwards client actions and detects the client going
	// away. All writes happen on this goroutine's side of the select, so the
	// connection only ever has one writer.
	actions := make(chan ws.Action)
	done := make(chan struct{})
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &msg); err != nil {
				return
			}
			select {
			case actions <- msg.Action:
			case <-stop:
				return
			}
		}
	}()

	ch := sub.Channel()
	for {
		select {
		case <-done:
			monLog.Info().Msg("Monitor disconnected")
			return
		case action := <-actions:
			var err error
			if action == ws.ActionPing {
				err = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
			} else {
				err = ws.WriteError(conn, "unknown action: "+string(action))
			}
			if err != nil {
				monLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		case msg, open := <-ch:
			if !open {
				monLog.Warn().Msg("Monitor subscription closed")
				return
			}
			frame := ws.MonitorFrame{
				Event:   ws.EventMonitor,
				Payload: []byte(msg.Payload),
			}
			if err := ws.WriteTyped(conn, frame); err != nil {
				monLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		}
	}
}
