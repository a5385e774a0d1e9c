package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/tricol-console/internal/middleware"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/permission"
	"github.com/stemsi/tricol-console/internal/response"
)

// Screen is a navigable view of the console and what it takes to reach it.
type Screen struct {
	Path        string
	Title       string
	Requirement permission.Requirement
	// Actions maps an action on the screen to the permissions enabling it.
	Actions map[string][]model.Permission
}

// ScreenHandler answers navigation requests with the view model of a
// screen: who is looking and which actions they may take.
type ScreenHandler struct {
	auth middleware.SessionReader
}

func NewScreenHandler(auth middleware.SessionReader) *ScreenHandler {
	return &ScreenHandler{auth: auth}
}

// Render serves a screen already admitted by the route guards.
func (h *ScreenHandler) Render(s Screen) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := middleware.GetUser(c)
		actions := make(map[string]bool, len(s.Actions))
		for name, perms := range s.Actions {
			actions[name] = permission.HasAny(user, perms)
		}
		response.Success(c, http.StatusOK, gin.H{
			"screen":  s.Path,
			"title":   s.Title,
			"user":    newUserView(user),
			"actions": actions,
		})
	}
}

// Login serves the sign-in screen. A signed-in operator goes straight to
// the return URL.
func (h *ScreenHandler) Login(c *gin.Context) {
	returnURL := middleware.SafeReturnURL(c.Query("returnUrl"))
	if h.auth.IsAuthenticated() {
		c.Redirect(http.StatusFound, returnURL)
		return
	}
	response.Success(c, http.StatusOK, gin.H{
		"screen":    middleware.LoginPath,
		"title":     "Sign in",
		"returnUrl": returnURL,
	})
}

// Register serves the sign-up screen. Registration never signs in, so it
// stays reachable with or without a session.
func (h *ScreenHandler) Register(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"screen":        "/register",
		"title":         "Create account",
		"authenticated": h.auth.IsAuthenticated(),
	})
}

// Fallback sends unknown paths to the landing page.
func (h *ScreenHandler) Fallback(c *gin.Context) {
	c.Redirect(http.StatusFound, middleware.LandingPath)
}
