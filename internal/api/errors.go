package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Syzygyastro/Orderbook/internal/engine"
)

// ErrorResponse represents a standardized error response.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// ErrorCode defines standard error codes.
type ErrorCode string

const (
	// Request errors (4xx)
	ErrCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeRateLimited    ErrorCode = "RATE_LIMITED"

	// Server errors (5xx)
	ErrCodeInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"

	// Order book errors
	ErrCodeInvalidOrder     ErrorCode = "INVALID_ORDER"
	ErrCodeDuplicateOrderID ErrorCode = "DUPLICATE_ORDER_ID"
	ErrCodeOrderNotFound    ErrorCode = "ORDER_NOT_FOUND"
)

// NewErrorResponse creates a new error response.
func NewErrorResponse(code ErrorCode, message string) *ErrorResponse {
	return &ErrorResponse{
		Error:   string(code),
		Message: message,
		Code:    string(code),
	}
}

// AbortWithError aborts the request with a standardized error response.
func AbortWithError(c *gin.Context, status int, code ErrorCode, message string) {
	c.AbortWithStatusJSON(status, NewErrorResponse(code, message))
}

// AbortWithErrorDetails aborts with a standardized error response including details.
func AbortWithErrorDetails(c *gin.Context, status int, code ErrorCode, message string, details map[string]string) {
	resp := NewErrorResponse(code, message)
	resp.Details = details
	c.AbortWithStatusJSON(status, resp)
}

// abortWithEngineError maps order book errors onto HTTP statuses.
func abortWithEngineError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidOrder):
		AbortWithError(c, http.StatusBadRequest, ErrCodeInvalidOrder, err.Error())
	case errors.Is(err, engine.ErrDuplicateOrderID):
		AbortWithError(c, http.StatusConflict, ErrCodeDuplicateOrderID, err.Error())
	case errors.Is(err, engine.ErrOrderNotFound):
		AbortWithError(c, http.StatusNotFound, ErrCodeOrderNotFound, err.Error())
	default:
		_ = c.Error(err)
		AbortWithError(c, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
	}
}
