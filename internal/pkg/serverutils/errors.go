package serverutils

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// ApiError carries an HTTP status alongside a user-presentable message.
type ApiError struct {
	Status  int
	Message string
}

func (e *ApiError) Error() string { return e.Message }

func NewApiError(status int, message string) *ApiError {
	return &ApiError{Status: status, Message: message}
}

var (
	ErrSessionNotFound = NewApiError(fiber.StatusNotFound, "Session not found or expired")
	ErrSessionEnded    = NewApiError(fiber.StatusGone, "This interview has already ended")
	ErrUnauthorized    = NewApiError(fiber.StatusUnauthorized, "Invalid or missing session token")
)

// ErrorHandlerMiddleware converts returned errors into the uniform
// response envelope. Unknown errors become opaque 500s; details stay in
// the logs, not the response.
func ErrorHandlerMiddleware() fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		err := ctx.Next()
		if err == nil {
			return nil
		}

		var apiErr *ApiError
		if errors.As(err, &apiErr) {
			return ctx.Status(apiErr.Status).JSON(ErrorResponse(apiErr.Message))
		}

		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			return ctx.Status(fiberErr.Code).JSON(ErrorResponse(fiberErr.Message))
		}

		return ctx.Status(fiber.StatusInternalServerError).JSON(ErrorResponse("Internal server error"))
	}
}
