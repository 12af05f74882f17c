package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/xraph/jobq"
	"github.com/xraph/jobq/pagination"
)

// Error is an API error with an HTTP status and a stable code.
type Error struct {
	Status   int
	Code     string
	Message  string
	Internal error
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return e.Code + ": " + e.Message + " (" + e.Internal.Error() + ")"
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Internal }

func newError(status int, code, message string, internal error) *Error {
	return &Error{Status: status, Code: code, Message: message, Internal: internal}
}

var errUnauthorized = newError(http.StatusUnauthorized, "unauthorized", "Authentication required", nil)

func badRequest(message string, err error) *Error {
	return newError(http.StatusBadRequest, "bad_request", message, err)
}

// mapError converts domain errors to API errors. This is the only place
// that decides HTTP status codes for engine and store errors.
func mapError(err error) *Error {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		return apiErr
	case errors.Is(err, jobq.ErrInvalidQueueName),
		errors.Is(err, jobq.ErrSerialization),
		errors.Is(err, pagination.ErrInvalidPage),
		errors.Is(err, pagination.ErrInvalidLimit):
		return badRequest(err.Error(), err)
	case errors.Is(err, jobq.ErrJobNotFound), errors.Is(err, jobq.ErrDLQNotFound):
		return newError(http.StatusNotFound, "not_found", err.Error(), err)
	case errors.Is(err, jobq.ErrDLQAlreadyReplayed), errors.Is(err, jobq.ErrJobAlreadyExists):
		return newError(http.StatusConflict, "conflict", err.Error(), err)
	}
	return newError(http.StatusInternalServerError, "internal_error", "An internal error occurred", err)
}

// HTTPErrorHandler renders errors as {"error": {"code", "message"}}.
// Server errors are logged.
func HTTPErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var he *echo.HTTPError
		var apiErr *Error
		if errors.As(err, &he) {
			msg := http.StatusText(he.Code)
			if s, ok := he.Message.(string); ok {
				msg = s
			}
			apiErr = newError(he.Code, codeForStatus(he.Code), msg, err)
		} else {
			apiErr = mapError(err)
		}

		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error("request error",
				slog.Int("status", apiErr.Status),
				slog.String("path", c.Path()),
				slog.String("error", err.Error()),
			)
		}

		body := map[string]any{
			"error": map[string]any{
				"code":    apiErr.Code,
				"message": apiErr.Message,
			},
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(apiErr.Status)
			return
		}
		_ = c.JSON(apiErr.Status, body)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusConflict:
		return "conflict"
	}
	if status >= http.StatusInternalServerError {
		return "internal_error"
	}
	return "error"
}
