package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/response"
)

const (
	// ContextKeyUser is the Gin context key for the signed-in user snapshot.
	ContextKeyUser = "user"

	// LoginPath is the unauthenticated entry point.
	LoginPath = "/login"
	// LandingPath is where authenticated but unauthorized navigation lands.
	LandingPath = "/dashboard"
)

// SessionReader is what the guards need to know about the live session.
type SessionReader interface {
	IsAuthenticated() bool
	CurrentUser() *model.UserIdentity
}

// RequireSession admits requests only while a session is live. Screens are
// redirected to the login page with a returnUrl; API calls get a 401 that
// carries the same location.
func RequireSession(auth SessionReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := auth.CurrentUser()
		if !auth.IsAuthenticated() || user == nil {
			target := LoginURL(c.Request.URL.RequestURI())
			if isAPIRequest(c) {
				response.AbortRedirect(c, http.StatusUnauthorized, response.ErrNotAuthenticated, target)
				return
			}
			c.Redirect(http.StatusFound, target)
			c.Abort()
			return
		}

		c.Set(ContextKeyUser, user)
		c.Next()
	}
}

// Require admits the request if the signed-in user meets req. Anyone else
// is sent to the landing page rather than shown an error.
func Require(req permission.Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		if req.SatisfiedBy(GetUser(c)) {
			c.Next()
			return
		}

		if isAPIRequest(c) {
			response.AbortRedirect(c, http.StatusForbidden, response.ErrPermissionDenied, LandingPath)
			return
		}
		c.Redirect(http.StatusFound, LandingPath)
		c.Abort()
	}
}

// RequirePermission checks that the user holds at least one of ps.
func RequirePermission(ps ...model.Permission) gin.HandlerFunc {
	return Require(permission.AnyPermission(ps...))
}

// RequireRole checks that the user holds at least one of rs.
func RequireRole(rs ...model.Role) gin.HandlerFunc {
	return Require(permission.AnyRole(rs...))
}

// GetUser retrieves the user stored by RequireSession.
func GetUser(c *gin.Context) *model.UserIdentity {
	val, exists := c.Get(ContextKeyUser)
	if !exists {
		return nil
	}
	user, ok := val.(*model.UserIdentity)
	if !ok {
		return nil
	}
	return user
}

// LoginURL builds the login location that returns to target afterwards.
func LoginURL(target string) string {
	target = SafeReturnURL(target)
	if target == LandingPath {
		return LoginPath
	}
	return LoginPath + "?returnUrl=" + url.QueryEscape(target)
}

// SafeReturnURL keeps only local absolute paths, falling back to the
// landing page. Login pages are never a return target.
func SafeReturnURL(target string) string {
	if target == "" || !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") ||
		strings.Contains(target, `\`) {
		return LandingPath
	}
	if target == LoginPath || strings.HasPrefix(target, LoginPath+"?") {
		return LandingPath
	}
	return target
}

func isAPIRequest(c *gin.Context) bool {
	path := c.Request.URL.Path
	return strings.HasPrefix(path, "/api/") || strings.HasPrefix(path, "/ws/") ||
		strings.Contains(c.GetHeader("Accept"), "application/json")
}
