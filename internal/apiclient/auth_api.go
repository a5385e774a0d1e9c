package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stemsi/tricol-console/internal/model"
)

// AuthAPI covers the /auth endpoints. It must run on a client without the
// credential interceptor in front of it.
type AuthAPI struct {
	c *Client
}

func NewAuthAPI(c *Client) *AuthAPI {
	return &AuthAPI{c: c}
}

// Login exchanges credentials for a token pair and identity.
func (a *AuthAPI) Login(ctx context.Context, req model.LoginRequest) (*model.JWTResponse, error) {
	var resp model.JWTResponse
	err := a.c.do(ctx, call{
		op:     "login",
		method: http.MethodPost,
		path:   PathLogin,
		body:   req,
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns the backend's confirmation text.
func (a *AuthAPI) Register(ctx context.Context, req model.RegisterRequest) (string, error) {
	var text string
	err := a.c.do(ctx, call{
		op:     "register",
		method: http.MethodPost,
		path:   PathRegister,
		body:   req,
		out:    &text,
	})
	return text, err
}

// Refresh trades a refresh token for a new token pair. The token travels in
// the query string and the request has no body.
func (a *AuthAPI) Refresh(ctx context.Context, refreshToken string) (*model.JWTResponse, error) {
	var resp model.JWTResponse
	err := a.c.do(ctx, call{
		op:     "refresh",
		method: http.MethodPost,
		path:   PathRefresh,
		query:  url.Values{"refreshToken": {refreshToken}},
		out:    &resp,
	})
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// OwnRecord fetches the admin record of user id using an explicitly given
// access token. It returns nil without error when the record is not listed.
func (a *AuthAPI) OwnRecord(ctx context.Context, accessToken string, id int64) (*model.AdminUser, error) {
	var users []model.AdminUser
	err := a.c.do(ctx, call{
		op:     "load own record",
		method: http.MethodGet,
		path:   PathUsers,
		header: bearer(accessToken),
		out:    &users,
	})
	if err != nil {
		return nil, err
	}
	for i := range users {
		if users[i].ID == id {
			return &users[i], nil
		}
	}
	return nil, nil
}

func userPath(id int64) string {
	return PathUsers + "/" + strconv.FormatInt(id, 10)
}
