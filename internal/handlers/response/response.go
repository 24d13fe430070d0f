// Package response writes JSON bodies and maps domain errors to HTTP statuses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/kevin07696/payme-service/internal/domain"
)

// ErrorBody is the JSON shape of every error response
type ErrorBody struct {
	Error     string           `json:"error"`
	ErrorCode domain.ErrorCode `json:"error_code"`
}

// JSON writes v with the given status
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes err as an ErrorBody. Errors that are not domain errors become a
// generic 500 so internals never leak.
func Error(w http.ResponseWriter, err error) {
	code := domain.GetErrorCode(err)
	if code == "" {
		JSON(w, http.StatusInternalServerError, ErrorBody{
			Error:     "internal server error",
			ErrorCode: domain.ErrorCodeInternalError,
		})
		return
	}
	message := domain.GetErrorMessage(err)
	if code == domain.ErrorCodeStorageError || code == domain.ErrorCodeInternalError {
		message = "internal server error"
	}
	JSON(w, StatusFor(code), ErrorBody{Error: message, ErrorCode: code})
}

// Message writes a plain message with an explicit status and code
func Message(w http.ResponseWriter, status int, code domain.ErrorCode, message string) {
	JSON(w, status, ErrorBody{Error: message, ErrorCode: code})
}

// StatusFor maps an error code to its HTTP status
func StatusFor(code domain.ErrorCode) int {
	switch code {
	case domain.ErrorCodeValidationFailed, domain.ErrorCodeInvalidAmount, domain.ErrorCodeProcessorError:
		return http.StatusBadRequest
	case domain.ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	case domain.ErrorCodeStripeAccountRequired:
		return http.StatusForbidden
	case domain.ErrorCodeNotFound:
		return http.StatusNotFound
	case domain.ErrorCodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
