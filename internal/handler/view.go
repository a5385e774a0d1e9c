package handler

import (
	"time"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/session"
)

// userView is the signed-in user as the browser sees it.
type userView struct {
	*model.UserIdentity
	FullName             string             `json:"fullName"`
	RoleLabel            string             `json:"roleLabel"`
	EffectivePermissions []model.Permission `json:"effectivePermissions"`
}

func newUserView(u *model.UserIdentity) *userView {
	if u == nil {
		return nil
	}
	return &userView{
		UserIdentity:         u,
		FullName:             u.FullName(),
		RoleLabel:            model.PrimaryRoleLabel(u.Roles),
		EffectivePermissions: permission.Effective(*u),
	}
}

// sessionView answers "who is signed in and until when".
type sessionView struct {
	Authenticated bool       `json:"authenticated"`
	User          *userView  `json:"user"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Redirect      string     `json:"redirect,omitempty"`
}

func newSessionView(sess *model.Session) sessionView {
	if sess == nil || sess.AccessToken == "" {
		return sessionView{Redirect: session.LoginPath}
	}
	v := sessionView{Authenticated: true, User: newUserView(&sess.User)}
	if info, err := session.InspectToken(sess.AccessToken); err == nil && !info.ExpiresAt.IsZero() {
		exp := info.ExpiresAt
		v.ExpiresAt = &exp
	}
	return v
}
