package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/erc-protest-agent/internal/pipeline"
)

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// ErrPackageNotFound indicates no archive is known for a request ID
type ErrPackageNotFound struct {
	RequestID string
}

func (e *ErrPackageNotFound) Error() string {
	return fmt.Sprintf("package not found: %s", e.RequestID)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var pe *pipeline.Error
	if errors.As(err, &pe) {
		switch pe.Code {
		case pipeline.CodeInvalidRequest:
			return http.StatusBadRequest
		case pipeline.CodeNavigationFailed:
			return http.StatusBadGateway
		case pipeline.CodeTimeout:
			return http.StatusGatewayTimeout
		case pipeline.CodeCancelled:
			return http.StatusServiceUnavailable
		default:
			return http.StatusInternalServerError
		}
	}

	var ve *ErrValidation
	var nf *ErrPackageNotFound
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &nf):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
