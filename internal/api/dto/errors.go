package dto

import (
	"net/http"

	apperrors "golang-reconciliation-engine/pkg/errors"
)

// APIError represents a structured error response.
// All error responses from the API use this format.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes
const (
	ErrCodeNotFound      = "not_found"
	ErrCodeBadRequest    = "bad_request"
	ErrCodeValidation    = "validation_error"
	ErrCodeConflict      = "conflict"
	ErrCodeRateLimited   = "rate_limited"
	ErrCodeInternalError = "internal_error"
)

// NewAPIError creates a new APIError with the given code and message.
func NewAPIError(code, message string) APIError {
	return APIError{Code: code, Message: message}
}

// BadRequestError creates a bad request error response.
func BadRequestError(message string) APIError {
	return NewAPIError(ErrCodeBadRequest, message)
}

// InternalError creates an internal server error response.
func InternalError() APIError {
	return NewAPIError(ErrCodeInternalError, "an internal error occurred")
}

// FromError maps an application error onto a status code and response body.
// Internal failures never leak their message.
func FromError(err error) (int, APIError) {
	rerr, ok := apperrors.AsReconcilerError(err)
	if !ok {
		return http.StatusInternalServerError, InternalError()
	}

	switch {
	case apperrors.IsNotFound(err):
		return http.StatusNotFound, NewAPIError(ErrCodeNotFound, rerr.Message)
	case apperrors.IsValidation(err), apperrors.HasCategory(err, apperrors.CategoryParse):
		return http.StatusBadRequest, NewAPIError(ErrCodeValidation, rerr.Message)
	case apperrors.IsConflict(err):
		return http.StatusConflict, NewAPIError(ErrCodeConflict, rerr.Message)
	case apperrors.HasCategory(err, apperrors.CategoryInvalidState):
		return http.StatusConflict, NewAPIError(string(rerr.Code), rerr.Message)
	}
	return http.StatusInternalServerError, InternalError()
}
