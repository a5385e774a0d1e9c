package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/tricol-console/internal/apiclient"
	"github.com/stemsi/tricol-console/internal/middleware"
	"github.com/stemsi/tricol-console/internal/response"
	"github.com/stemsi/tricol-console/internal/service"
)

// writeAuthError renders a typed authentication failure with its single
// operator-facing message.
func writeAuthError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if !errors.As(err, &authErr) {
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	switch {
	case errors.Is(authErr, service.ErrInvalidCredentials):
		response.FailWithMessage(c, http.StatusUnauthorized, response.ErrInvalidCredentials, authErr.Message)
	case errors.Is(authErr, service.ErrValidation):
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, authErr.Message)
	case errors.Is(authErr, service.ErrNoRefreshToken), errors.Is(authErr, service.ErrRefreshRejected):
		response.AbortRedirect(c, http.StatusUnauthorized, response.ErrSessionExpired, middleware.LoginPath)
	case errors.Is(authErr, service.ErrNetworkUnreachable):
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrNetworkUnreachable, authErr.Message)
	default:
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrServerError, authErr.Message)
	}
}

// writeServiceError renders errors from the administration path, including
// backend failures and refresh failures surfaced by the interceptor.
func writeServiceError(c *gin.Context, err error) {
	var authErr *service.AuthError
	if errors.As(err, &authErr) {
		writeAuthError(c, authErr)
		return
	}

	switch {
	case errors.Is(err, service.ErrPermissionDenied):
		response.AbortRedirect(c, http.StatusForbidden, response.ErrPermissionDenied, middleware.LandingPath)
		return
	case errors.Is(err, service.ErrUserNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	case errors.Is(err, service.ErrInvalidRole):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidRole)
		return
	case errors.Is(err, service.ErrUnknownPermission):
		response.Fail(c, http.StatusBadRequest, response.ErrUnknownPermission)
		return
	case errors.Is(err, service.ErrNoChanges):
		response.Fail(c, http.StatusBadRequest, response.ErrNoChanges)
		return
	}

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) {
		_ = c.Error(err)
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	switch {
	case apiErr.Unreachable():
		response.Fail(c, http.StatusBadGateway, response.ErrNetworkUnreachable)
	case apiErr.Status == http.StatusUnauthorized:
		response.AbortRedirect(c, http.StatusUnauthorized, response.ErrSessionExpired, middleware.LoginPath)
	case apiErr.Status == http.StatusForbidden:
		response.Fail(c, http.StatusForbidden, response.ErrPermissionDenied)
	case apiErr.Status == http.StatusNotFound:
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case apiErr.Status == http.StatusBadRequest:
		response.FailWithMessage(c, http.StatusBadRequest, response.ErrValidation, apiErr.Message)
	default:
		_ = c.Error(err)
		response.FailWithMessage(c, http.StatusBadGateway, response.ErrServerError, serverErrorMessage(apiErr.Status))
	}
}

func serverErrorMessage(status int) string {
	return fmt.Sprintf("Server error: %d", status)
}
