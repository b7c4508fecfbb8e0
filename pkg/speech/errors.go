package speech

import "fmt"

// ErrorCode classifies capture and playback failures. These are surfaced
// through dedicated callbacks, never mixed into transport errors.
type ErrorCode string

const (
	ErrPermissionDenied   ErrorCode = "permission_denied"
	ErrDeviceNotFound     ErrorCode = "device_not_found"
	ErrDeviceInUse        ErrorCode = "device_in_use"
	ErrUnauthorized       ErrorCode = "unauthorized"
	ErrForbidden          ErrorCode = "forbidden"
	ErrRateLimited        ErrorCode = "rate_limited"
	ErrServiceUnavailable ErrorCode = "service_unavailable"
	ErrReconnectExhausted ErrorCode = "reconnect_exhausted"
)

// Error pairs a stable code with a human-readable message the UI can show
// as-is.
type Error struct {
	Code    ErrorCode
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("speech: %s: %v", e.Code, e.cause)
	}
	return fmt.Sprintf("speech: %s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

var userMessages = map[ErrorCode]string{
	ErrPermissionDenied:   "Microphone access was denied. Please allow microphone access and try again.",
	ErrDeviceNotFound:     "No microphone was found. Please connect a microphone and try again.",
	ErrDeviceInUse:        "Your microphone is in use by another application. Please close it and try again.",
	ErrUnauthorized:       "Your speech session credential has expired. Please refresh the page.",
	ErrForbidden:          "Speech service access is not allowed for this session.",
	ErrRateLimited:        "The speech service is briefly overloaded. Please wait a moment.",
	ErrServiceUnavailable: "The speech service is temporarily unavailable. Please try again shortly.",
	ErrReconnectExhausted: "The audio connection could not be restored. Please refresh the page.",
}

func newError(code ErrorCode, cause error) *Error {
	return &Error{Code: code, Message: userMessages[code], cause: cause}
}

// mapHTTPStatus converts a speech-service HTTP status into a classified
// error. Every 5xx collapses to service_unavailable.
func mapHTTPStatus(status int) *Error {
	switch {
	case status == 401:
		return newError(ErrUnauthorized, nil)
	case status == 403:
		return newError(ErrForbidden, nil)
	case status == 429:
		return newError(ErrRateLimited, nil)
	case status >= 500:
		return newError(ErrServiceUnavailable, nil)
	default:
		return &Error{Code: ErrServiceUnavailable, Message: userMessages[ErrServiceUnavailable],
			cause: fmt.Errorf("unexpected status %d", status)}
	}
}

// MapDeviceError classifies a capture-device failure reported by the
// audio runtime by its conventional error name.
func MapDeviceError(name string, cause error) *Error {
	switch name {
	case "NotAllowedError", "PermissionDeniedError":
		return newError(ErrPermissionDenied, cause)
	case "NotFoundError", "DevicesNotFoundError":
		return newError(ErrDeviceNotFound, cause)
	case "NotReadableError", "TrackStartError":
		return newError(ErrDeviceInUse, cause)
	default:
		return newError(ErrServiceUnavailable, cause)
	}
}
