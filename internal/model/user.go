package model

import "slices"

// UserIdentity is the signed-in user as issued by the backend for a token.
// Values are treated as immutable snapshots; use Clone before handing one out.
type UserIdentity struct {
	ID          int64        `json:"id"`
	Email       string       `json:"email"`
	FirstName   string       `json:"firstName"`
	LastName    string       `json:"lastName"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"permissions"`
	// RoleDefaultPermissions are the permissions granted by the user's roles,
	// as reported by the backend.
	RoleDefaultPermissions []Permission `json:"roleDefaultPermissions,omitempty"`
}

// FullName returns "First Last", falling back to the email.
func (u UserIdentity) FullName() string {
	if u.FirstName != "" || u.LastName != "" {
		if u.LastName == "" {
			return u.FirstName
		}
		if u.FirstName == "" {
			return u.LastName
		}
		return u.FirstName + " " + u.LastName
	}
	return u.Email
}

// Clone returns a deep copy of the identity.
func (u UserIdentity) Clone() UserIdentity {
	u.Roles = slices.Clone(u.Roles)
	u.Permissions = slices.Clone(u.Permissions)
	u.RoleDefaultPermissions = slices.Clone(u.RoleDefaultPermissions)
	return u
}

// Session is the single live sign-in: both tokens plus the identity they were issued for.
type Session struct {
	AccessToken  string       `json:"-"`
	RefreshToken string       `json:"-"`
	User         UserIdentity `json:"user"`
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		User:         s.User.Clone(),
	}
}

// AdminUser is a user record as listed by the admin API.
type AdminUser struct {
	UserIdentity
	Active *bool `json:"active,omitempty"`
}

// Status returns the status label shown on the users screen.
func (u AdminUser) Status() string {
	if len(u.Roles) > 0 {
		return "Active"
	}
	return "No Role"
}
