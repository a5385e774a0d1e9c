package apiclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/stemsi/tricol-console/internal/model"
)

// AdminAPI covers the /admin/users endpoints. Its client is expected to
// carry the credential interceptor.
type AdminAPI struct {
	c *Client
}

func NewAdminAPI(c *Client) *AdminAPI {
	return &AdminAPI{c: c}
}

// ListUsers returns every user record with explicit and role-default
// permissions.
func (a *AdminAPI) ListUsers(ctx context.Context) ([]model.AdminUser, error) {
	var users []model.AdminUser
	err := a.c.do(ctx, call{
		op:     "list users",
		method: http.MethodGet,
		path:   PathUsers,
		out:    &users,
	})
	if err != nil {
		return nil, err
	}
	return users, nil
}

// AssignRole replaces the role membership of a user.
func (a *AdminAPI) AssignRole(ctx context.Context, userID int64, role model.Role) (string, error) {
	var text string
	err := a.c.do(ctx, call{
		op:     "assign role",
		method: http.MethodPost,
		path:   userPath(userID) + "/assign-role",
		query:  url.Values{"roleName": {string(role)}},
		out:    &text,
	})
	return text, err
}

// UpdatePermission sets an explicit permission flag for a user.
func (a *AdminAPI) UpdatePermission(ctx context.Context, userID int64, permissionID int, granted bool) (string, error) {
	var text string
	err := a.c.do(ctx, call{
		op:     "update permission",
		method: http.MethodPost,
		path:   userPath(userID) + "/permissions/" + strconv.Itoa(permissionID),
		query:  url.Values{"granted": {strconv.FormatBool(granted)}},
		out:    &text,
	})
	return text, err
}

// RemovePermission deletes an explicit permission of a user.
func (a *AdminAPI) RemovePermission(ctx context.Context, userID int64, permissionID int) (string, error) {
	var text string
	err := a.c.do(ctx, call{
		op:     "remove permission",
		method: http.MethodDelete,
		path:   userPath(userID) + "/permissions/" + strconv.Itoa(permissionID),
		out:    &text,
	})
	return text, err
}
