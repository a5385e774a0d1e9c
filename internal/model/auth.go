package model

// LoginRequest is the payload for signing in.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,max=128"`
}

// RegisterRequest is the payload for creating an account.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required,max=100"`
	LastName  string `json:"lastName" binding:"required,max=100"`
	Email     string `json:"email" binding:"required,email,max=255"`
	Password  string `json:"password" binding:"required,min=6,max=128"`
}

// JWTResponse is returned by the login and refresh endpoints.
type JWTResponse struct {
	Token                  string       `json:"token"`
	RefreshToken           string       `json:"refreshToken"`
	Type                   string       `json:"type,omitempty"`
	ID                     int64        `json:"id"`
	Email                  string       `json:"email"`
	FirstName              string       `json:"firstName"`
	LastName               string       `json:"lastName"`
	Roles                  []Role       `json:"roles"`
	Permissions            []Permission `json:"permissions"`
	RoleDefaultPermissions []Permission `json:"roleDefaultPermissions,omitempty"`
}

// Session builds the session described by the response.
func (r JWTResponse) Session() *Session {
	return &Session{
		AccessToken:  r.Token,
		RefreshToken: r.RefreshToken,
		User: UserIdentity{
			ID:                     r.ID,
			Email:                  r.Email,
			FirstName:              r.FirstName,
			LastName:               r.LastName,
			Roles:                  r.Roles,
			Permissions:            r.Permissions,
			RoleDefaultPermissions: r.RoleDefaultPermissions,
		},
	}
}
