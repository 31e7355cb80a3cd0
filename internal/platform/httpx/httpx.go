// Package httpx writes API responses for gin handlers, mapping apperr kinds to statuses.
package httpx

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymhub/backend/internal/platform/apperr"
)

// RetryAfterSeconds is sent with 503 responses.
const RetryAfterSeconds = "5"

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail describes a failed request.
type ErrorDetail struct {
	Kind          string              `json:"kind"`
	Message       string              `json:"message"`
	Retryable     bool                `json:"retryable"`
	Fields        []apperr.FieldError `json:"fields,omitempty"`
	ApplicationID string              `json:"application_id,omitempty"`
}

// WriteError aborts the request with the status and body for err. Internal errors are
// attached to the gin context for the request logger and reported without detail.
func WriteError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	detail := ErrorDetail{
		Kind:      apperr.Kind(err),
		Message:   err.Error(),
		Retryable: apperr.Retryable(err),
	}
	var (
		ve *apperr.ValidationError
		pe *apperr.PartialApprovalError
	)
	if errors.As(err, &ve) {
		detail.Fields = ve.Fields
	}
	if errors.As(err, &pe) {
		detail.ApplicationID = pe.ApplicationID
	}
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	if status == http.StatusInternalServerError {
		detail.Message = "internal error"
	}
	if status == http.StatusServiceUnavailable {
		c.Header("Retry-After", RetryAfterSeconds)
	}
	c.AbortWithStatusJSON(status, ErrorBody{Error: detail})
}

// BindJSON decodes the request body into dest. A malformed body is a ValidationError.
func BindJSON(c *gin.Context, dest any) error {
	if err := c.ShouldBindJSON(dest); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.NewValidation("body", "is required")
		}
		return apperr.NewValidation("body", "must be valid JSON: "+err.Error())
	}
	return nil
}

// Data is the envelope of successful responses.
type Data[T any] struct {
	Data T `json:"data"`
}

// OK writes v with status 200.
func OK[T any](c *gin.Context, v T) {
	c.JSON(http.StatusOK, Data[T]{Data: v})
}

// Created writes v with status 201.
func Created[T any](c *gin.Context, v T) {
	c.JSON(http.StatusCreated, Data[T]{Data: v})
}
