package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrNotAuthenticated   ErrCode = "NOT_AUTHENTICATED"
	ErrSessionExpired     ErrCode = "SESSION_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidRole    ErrCode = "INVALID_ROLE"

	// ─── Administration ────────────────────────────────────────────────
	ErrNotFound          ErrCode = "NOT_FOUND"
	ErrNoChanges         ErrCode = "NO_CHANGES"
	ErrUnknownPermission ErrCode = "UNKNOWN_PERMISSION"
	ErrPartialFailure    ErrCode = "PARTIAL_FAILURE"

	// ─── Backend ───────────────────────────────────────────────────────
	ErrNetworkUnreachable ErrCode = "NETWORK_UNREACHABLE"
	ErrServerError        ErrCode = "SERVER_ERROR"
	ErrPayloadTooLarge    ErrCode = "PAYLOAD_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Invalid credentials"
	case ErrNotAuthenticated:
		return "You must sign in to continue."
	case ErrSessionExpired:
		return "Session expired, please sign in again"

	case ErrPermissionDenied:
		return "You do not have permission to perform this action."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidRole:
		return "Unknown role."

	case ErrNotFound:
		return "Resource not found."
	case ErrNoChanges:
		return "No changes to save"
	case ErrUnknownPermission:
		return "Unknown permission."
	case ErrPartialFailure:
		return "Some changes could not be saved."

	case ErrNetworkUnreachable:
		return "Unable to connect to server"
	case ErrServerError:
		return "Server error"
	case ErrPayloadTooLarge:
		return "Request body is too large."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
