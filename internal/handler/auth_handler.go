package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/tricol-console/internal/middleware"
	"github.com/stemsi/tricol-console/internal/model"
	"github.com/stemsi/tricol-console/internal/response"
	"github.com/stemsi/tricol-console/internal/service"
	"github.com/stemsi/tricol-console/internal/validator"
)

// AuthHandler handles console sign-in, registration and sign-out.
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type loginBody struct {
	model.LoginRequest
	ReturnURL string `json:"returnUrl"`
}

// Login godoc
// POST /api/auth/login
// Signs in against the backend and answers with the page to continue to.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginBody
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sess, err := h.authService.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	returnURL := req.ReturnURL
	if returnURL == "" {
		returnURL = c.Query("returnUrl")
	}

	response.Success(c, http.StatusOK, gin.H{
		"session":   newSessionView(sess),
		"returnUrl": middleware.SafeReturnURL(returnURL),
	})
}

// Register godoc
// POST /api/auth/register
// Creates an account. The current session, if any, is untouched.
func (h *AuthHandler) Register(c *gin.Context) {
	var req model.RegisterRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	text, err := h.authService.Register(c.Request.Context(), req)
	if err != nil {
		writeAuthError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"message": text})
}

// Logout godoc
// POST /api/auth/logout
// Ends the session. Calling it without a session is not an error.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(c.Request.Context())
	response.Success(c, http.StatusOK, gin.H{"redirect": middleware.LoginPath})
}

// Refresh godoc
// POST /api/auth/refresh
// Forces a token refresh. A failure ends the session.
func (h *AuthHandler) Refresh(c *gin.Context) {
	if err := h.authService.Refresh(context.WithoutCancel(c.Request.Context())); err != nil {
		writeAuthError(c, err)
		return
	}
	response.Success(c, http.StatusOK, newSessionView(h.authService.Session()))
}

// Session godoc
// GET /api/session
// Returns the signed-in user with effective permissions and token expiry.
func (h *AuthHandler) Session(c *gin.Context) {
	response.Success(c, http.StatusOK, newSessionView(h.authService.Session()))
}
