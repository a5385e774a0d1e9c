package service

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/tricol-console/internal/apiclient"
)

// Authentication outcome kinds.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrValidation         = errors.New("validation error")
	ErrNoRefreshToken     = errors.New("no refresh token")
	ErrRefreshRejected    = errors.New("refresh rejected")
	ErrNetworkUnreachable = errors.New("network unreachable")
	ErrServerError        = errors.New("server error")
)

// Administration errors.
var (
	ErrPermissionDenied  = errors.New("permission denied")
	ErrUserNotFound      = errors.New("user not found")
	ErrUnknownPermission = errors.New("unknown permission")
	ErrInvalidRole       = errors.New("invalid role")
	ErrNoChanges         = errors.New("No changes to save")
)

// AuthError is a typed authentication failure. Message is the single
// human-readable text shown to the operator.
type AuthError struct {
	Kind    error
	Status  int
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	return e.Message
}

func (e *AuthError) Unwrap() []error {
	errs := []error{e.Kind}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Message returns the operator-facing text of err.
func Message(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func newAuthError(kind error, status int, message string, cause error) *AuthError {
	return &AuthError{Kind: kind, Status: status, Message: message, Err: cause}
}

// classify maps a failed login or register call onto the error taxonomy.
func classify(err error) *AuthError {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}

	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Unreachable() {
		return newAuthError(ErrNetworkUnreachable, 0, "Unable to connect to server", err)
	}

	switch apiErr.Status {
	case http.StatusUnauthorized:
		return newAuthError(ErrInvalidCredentials, apiErr.Status, "Invalid credentials", err)
	case http.StatusBadRequest:
		msg := apiErr.Message
		if msg == "" {
			msg = "Bad request"
		}
		return newAuthError(ErrValidation, apiErr.Status, msg, err)
	default:
		return newAuthError(ErrServerError, apiErr.Status, serverMessage(apiErr), err)
	}
}

// serverMessage prefers the backend's own message over the status line.
func serverMessage(apiErr *apiclient.APIError) string {
	if apiErr.Message != "" {
		return apiErr.Message
	}
	return fmt.Sprintf("Server error: %d", apiErr.Status)
}

// classifyRefresh maps a failed refresh call. Any 4xx means the backend no
// longer honors the refresh token.
func classifyRefresh(err error) *AuthError {
	var apiErr *apiclient.APIError
	if !errors.As(err, &apiErr) || apiErr.Unreachable() {
		return newAuthError(ErrNetworkUnreachable, 0, "Unable to connect to server", err)
	}
	if apiErr.Status >= 400 && apiErr.Status < 500 {
		return newAuthError(ErrRefreshRejected, apiErr.Status, "Session expired, please sign in again", err)
	}
	return newAuthError(ErrServerError, apiErr.Status, serverMessage(apiErr), err)
}
