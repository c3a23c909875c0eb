package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/koor-fr/security-component/internal/service"
)

// ErrorCode is the machine readable code of an API error.
type ErrorCode string

const (
	CodeBadRequest      ErrorCode = "BadRequest"
	CodeBadCredentials  ErrorCode = "BadCredentials"
	CodeAccountDisabled ErrorCode = "AccountDisabled"
	CodeAccessDenied    ErrorCode = "AccessDenied"
	CodeNotFound        ErrorCode = "NotFound"
	CodeConflict        ErrorCode = "AlreadyRegistered"
	CodeInternal        ErrorCode = "InternalError"
)

// APIError is the JSON body of every error response.
type APIError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	RequestID  string    `json:"request_id,omitempty"`
	HTTPStatus int       `json:"-"`
}

func (e *APIError) Error() string {
	return string(e.Code) + ": " + e.Message
}

// NewAPIError maps a service error to its API error.
// Internal failures never expose the underlying message.
func NewAPIError(err error) *APIError {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return &APIError{Code: CodeBadRequest, Message: err.Error(), HTTPStatus: http.StatusBadRequest}

	case errors.Is(err, service.ErrNotFound):
		return &APIError{Code: CodeNotFound, Message: err.Error(), HTTPStatus: http.StatusNotFound}

	case errors.Is(err, service.ErrAlreadyRegistered):
		return &APIError{Code: CodeConflict, Message: err.Error(), HTTPStatus: http.StatusConflict}

	case errors.Is(err, service.ErrBadCredentials):
		return &APIError{Code: CodeBadCredentials, Message: "bad credentials", HTTPStatus: http.StatusUnauthorized}

	case errors.Is(err, service.ErrAccountDisabled):
		return &APIError{Code: CodeAccountDisabled, Message: "account is disabled", HTTPStatus: http.StatusForbidden}

	default:
		return &APIError{Code: CodeInternal, Message: "internal error", HTTPStatus: http.StatusInternalServerError}
	}
}

func badRequest(msg string) *APIError {
	return &APIError{Code: CodeBadRequest, Message: msg, HTTPStatus: http.StatusBadRequest}
}

// writeError writes apiErr with the request ID of r.
func writeError(w http.ResponseWriter, r *http.Request, apiErr *APIError) {
	apiErr.RequestID = RequestIDFromContext(r.Context())
	writeJSON(w, apiErr.HTTPStatus, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
