package websocket

import "github.com/stemsi/tricol-console/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing    Action = "ping"
	ActionRefresh Action = "refresh"
)

// RequestEnvelope is the only client message shape; actions carry no payload.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSession Event = "session"
	EventError   Event = "error"
	EventPong    Event = "pong"
)

// SessionResponse announces a change of the signed-in user.
type SessionResponse struct {
	Event         Event               `json:"event"`
	Kind          string              `json:"kind"`
	Authenticated bool                `json:"authenticated"`
	User          *model.UserIdentity `json:"user"`
	// Effective is the union of explicit and role-default permissions.
	Effective []model.Permission `json:"effective_permissions"`
	RoleLabel string             `json:"role_label,omitempty"`
	Redirect  string             `json:"redirect,omitempty"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
