package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/session"
	ws "github.com/stemsi/tricol-console/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
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

// SessionStreamHandler pushes session changes to the browser so every tab
// follows login, refresh and logout.
type SessionStreamHandler struct {
	authService *service.AuthService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

func NewSessionStreamHandler(authService *service.AuthService, log zerolog.Logger, allowedOrigins []string) *SessionStreamHandler {
	return &SessionStreamHandler{
		authService: authService,
		log:         log.With().Str("component", "session_stream").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// Stream godoc
// WS /ws/session
// The first message is the current session; later messages follow changes.
func (h *SessionStreamHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	events, unsubscribe := h.authService.Subscribe(8)
	defer unsubscribe()

	var writeMu sync.Mutex
	write := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return ws.WriteTyped(conn, v)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if err := write(sessionMessage(ev)); err != nil {
				h.log.Debug().Err(err).Msg("Session stream write failed")
				conn.Close()
				return
			}
		}
	}()

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Warn().Err(err).Msg("Unexpected close")
			}
			break
		}

		switch msg.Action {
		case ws.ActionPing:
			_ = write(ws.PongResponse{Event: ws.EventPong})
		case ws.ActionRefresh:
			// The outcome arrives as a session event.
			if err := h.authService.Refresh(context.WithoutCancel(c.Request.Context())); err != nil {
				writeMu.Lock()
				_ = ws.WriteError(conn, service.Message(err))
				writeMu.Unlock()
			}
		default:
			writeMu.Lock()
			_ = ws.WriteError(conn, "unknown action")
			writeMu.Unlock()
		}
	}

	unsubscribe()
	<-done
}

func sessionMessage(ev session.Event) ws.SessionResponse {
	msg := ws.SessionResponse{
		Event:         ws.EventSession,
		Kind:          string(ev.Kind),
		Authenticated: ev.User != nil,
		User:          ev.User,
		Redirect:      ev.Redirect,
		Effective:     []model.Permission{},
	}
	if ev.User != nil {
		msg.Effective = permission.Effective(*ev.User)
		msg.RoleLabel = model.PrimaryRoleLabel(ev.User.Roles)
	}
	return msg
}
