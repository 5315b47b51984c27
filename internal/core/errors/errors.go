package errors

const (
	HttpInternalError         = "internal_error"
	HttpInvalidJsonError      = "invalid_json"
	HttpInvalidArgumentError  = "invalid_argument"
	HttpPermissionDeniedError = "permission_denied"
	HttpUnauthenticatedError  = "unauthenticated"
	HttpUnknownCommandError   = "unknown_command"
	HttpStorageError          = "storage_failure"
	HttpUnavailableError      = "unavailable"
)

// ErrorResponse is the error response body shared by all HTTP handlers.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
