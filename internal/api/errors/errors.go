// Package errors provides error handling and HTTP status code mapping.
package errors

import (
	"errors"
	"net/http"

	"github.com/remiblancher/certwizard/internal/api/dto"
	"github.com/remiblancher/certwizard/internal/api/service"
	"github.com/remiblancher/certwizard/internal/draft"
	"github.com/remiblancher/certwizard/internal/keygen"
	"github.com/remiblancher/certwizard/internal/validation"
	"github.com/remiblancher/certwizard/internal/wizard"
)

// Error codes for API responses.
const (
	CodeInvalidRequest       = "INVALID_REQUEST"
	CodeNotFound             = "NOT_FOUND"
	CodeValidation           = "VALIDATION_ERROR"
	CodeInternal             = "INTERNAL_ERROR"
	CodeSessionNotFound      = "SESSION_NOT_FOUND"
	CodeSessionClosed        = "SESSION_CLOSED"
	CodeNoNextState          = "NO_NEXT_STATE"
	CodeNoPreviousState      = "NO_PREVIOUS_STATE"
	CodeUnsupportedAlgorithm = "UNSUPPORTED_ALGORITHM"
	CodeInvalidDraft         = "INVALID_DRAFT"
)

// MapError maps an internal error to an HTTP status code and APIError.
func MapError(err error) (int, *dto.APIError) {
	if err == nil {
		return http.StatusOK, nil
	}

	var ve *validation.ValidationError
	if errors.As(err, &ve) {
		details := map[string]string{
			"kind":  string(ve.Kind),
			"field": ve.Field,
		}
		if ve.Value != "" {
			details["value"] = ve.Value
		}
		return http.StatusUnprocessableEntity, NewValidationError(err.Error(), details)
	}

	var uae *keygen.UnsupportedAlgorithmError
	if errors.As(err, &uae) {
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeUnsupportedAlgorithm,
			Message: uae.Error(),
			Details: map[string]string{"keypair_algorithm": uae.KeyPairAlgorithm},
		}
	}

	switch {
	case errors.Is(err, service.ErrSessionNotFound):
		return http.StatusNotFound, &dto.APIError{
			Code:    CodeSessionNotFound,
			Message: err.Error(),
		}
	case errors.Is(err, wizard.ErrSessionClosed):
		return http.StatusGone, &dto.APIError{
			Code:    CodeSessionClosed,
			Message: err.Error(),
		}
	case errors.Is(err, wizard.ErrNoNextState):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeNoNextState,
			Message: err.Error(),
		}
	case errors.Is(err, wizard.ErrNoPreviousState):
		return http.StatusConflict, &dto.APIError{
			Code:    CodeNoPreviousState,
			Message: err.Error(),
		}
	case errors.Is(err, draft.ErrUnsupportedFormat), errors.Is(err, service.ErrInvalidDraft):
		return http.StatusBadRequest, &dto.APIError{
			Code:    CodeInvalidDraft,
			Message: err.Error(),
		}
	}

	// Default internal error
	return http.StatusInternalServerError, &dto.APIError{
		Code:    CodeInternal,
		Message: "An internal error occurred",
	}
}

// NewBadRequest creates a bad request error.
func NewBadRequest(message string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeInvalidRequest,
		Message: message,
	}
}

// NewNotFound creates a not found error.
func NewNotFound(resource, id string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeNotFound,
		Message: resource + " not found",
		Details: map[string]string{"id": id},
	}
}

// NewValidationError creates a validation error.
func NewValidationError(message string, details map[string]string) *dto.APIError {
	return &dto.APIError{
		Code:    CodeValidation,
		Message: message,
		Details: details,
	}
}
