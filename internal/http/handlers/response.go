// Package handlers provides HTTP handler implementations for the public API.
//
// This file defines the standard response utilities used across all endpoints,
// including structured error envelopes, consistent JSON serialization, and
// helpers for common HTTP patterns. The goal is to guarantee uniform responses
// for both success and failure cases, making the API predictable and
// machine-friendly.
//
// Conventions:
//   - All error responses must return an ErrorResponse with a stable `code`.
//   - `fail()` centralizes error logging and formatting, ensuring 5xx responses
//     are logged with request context for observability.
//   - `failFromErr()` translates service-layer error kinds into HTTP statuses
//     in one place, so handlers never re-implement the mapping.
//   - `ok()` and `noContent()` simplify writing success responses in a
//     consistent shape across handlers.
//
// Example error response:
//
//	HTTP/1.1 404 Not Found
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "not_found",
//	  "message": "complaint not found"
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/citizenlink/citizenlink-api/internal/http/middleware"
	"github.com/citizenlink/citizenlink-api/internal/services"
)

// ErrorResponse is the standard error envelope returned by all endpoints.
//
// Fields:
//   - RequestID: Optional correlation ID, echoed from X-Request-ID header, used
//     to correlate server logs with client-side errors.
//   - Code: A stable, machine-readable string (see errors.go constants).
//   - Message: A human-readable error description, safe for display to users.
//   - Details: Optional structured detail, e.g. the full violation list of a
//     failed validation or the invalid department codes of a rejected
//     assignment.
type ErrorResponse struct {
	// Correlates server logs and client errors
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go constants)
	Code string `json:"code" example:"not_found"`
	// Human-readable message (safe to show to users)
	Message string `json:"message" example:"complaint not found"`
	// Optional structured detail (violations, invalid codes)
	Details []string `json:"details,omitempty"`
}

// fail aborts the request with a structured error and logs server-side errors.
func fail(c *gin.Context, status int, code, msg string, details ...string) {
	reqID := c.Writer.Header().Get("X-Request-ID")
	resp := ErrorResponse{
		RequestID: reqID,
		Code:      code,
		Message:   msg,
		Details:   details,
	}

	// Log 5xx (server-side) with request-scoped logger
	if status >= http.StatusInternalServerError {
		lg := middleware.LoggerFrom(c)
		lg.Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}

	c.AbortWithStatusJSON(status, resp)
}

// Fail is the exported variant of fail().
//
// External packages (e.g., router setup) should call Fail to return
// consistent error envelopes without directly depending on unexported helpers.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

// failFromErr maps service-layer errors onto HTTP responses:
// ValidationError → 400, ErrForbidden → 403, not-found sentinels → 404,
// ConflictError / InvalidDepartmentsError → 409, everything else → 500.
func failFromErr(c *gin.Context, err error) {
	switch {
	case err == nil:
		return
	case isValidation(err):
		ve, _ := services.AsValidation(err)
		fail(c, http.StatusBadRequest, ErrCodeValidation, "validation failed", ve.Violations...)
	case errors.Is(err, services.ErrForbidden):
		fail(c, http.StatusForbidden, ErrCodeForbidden, err.Error())
	case errors.Is(err, services.ErrComplaintNotFound),
		errors.Is(err, services.ErrAssignmentNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case isInvalidDepartments(err):
		ie, _ := services.AsInvalidDepartments(err)
		fail(c, http.StatusConflict, ErrCodeInvalidDepartments, err.Error(), ie.Codes...)
	case isConflict(err):
		fail(c, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
	}
}

func isValidation(err error) bool {
	_, ok := services.AsValidation(err)
	return ok
}

func isConflict(err error) bool {
	_, ok := services.AsConflict(err)
	return ok
}

func isInvalidDepartments(err error) bool {
	_, ok := services.AsInvalidDepartments(err)
	return ok
}

// ok writes a success JSON response.
func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// noContent writes an HTTP 204 No Content response.
func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
