// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/chat-backend/internal/apperr"
	"github.com/labstack/echo/v4"
)

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Success    bool                `json:"success"`
	StatusCode int                 `json:"statusCode"`
	Message    string              `json:"message"`
	Errors     []apperr.FieldError `json:"errors,omitempty"`
	Timestamp  string              `json:"timestamp"`
	Path       string              `json:"path"`
}

// StatusFor maps an error kind to its HTTP status. Missing users are
// reported as unauthorized so the API does not reveal which emails exist.
func StatusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusUnauthorized
	case apperr.KindTooManyRequests:
		return http.StatusTooManyRequests
	case apperr.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusInternalServerError
}

// ErrorHandler writes err as an ErrorResponse. It is installed as echo's
// HTTPErrorHandler, so every error returned by a handler or middleware ends here.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	resp := ErrorResponse{
		Success:    false,
		StatusCode: http.StatusInternalServerError,
		Message:    "Internal server error",
		Timestamp:  time.Now().UTC().Format(timestampLayout),
		Path:       c.Request().URL.Path,
	}

	var appErr *apperr.Error
	var httpErr *echo.HTTPError

	switch {
	case errors.As(err, &appErr):
		resp.StatusCode = StatusFor(appErr.Kind)
		resp.Message = appErr.Message
		resp.Errors = appErr.Fields
	case errors.As(err, &httpErr):
		resp.StatusCode = httpErr.Code
		resp.Message = httpMessage(httpErr)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"method", c.Request().Method,
			"path", resp.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
			"error", err,
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(resp.StatusCode)
	} else {
		writeErr = c.JSON(resp.StatusCode, resp)
	}
	if writeErr != nil {
		slog.ErrorContext(c.Request().Context(), "error_response_failed", "error", writeErr)
	}
}

func httpMessage(he *echo.HTTPError) string {
	if he.Code >= http.StatusInternalServerError {
		return "Internal server error"
	}
	if msg, ok := he.Message.(string); ok && msg != "" {
		return msg
	}
	if he.Message != nil {
		return fmt.Sprint(he.Message)
	}
	return http.StatusText(he.Code)
}
