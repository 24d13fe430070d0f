package stripe

import (
	"errors"
	"net/http"

	stripego "github.com/stripe/stripe-go/v81"

	"github.com/kevin07696/payme-service/internal/domain"
	pkgerrors "github.com/kevin07696/payme-service/pkg/errors"
)

// toProcessorError classifies an SDK error
func toProcessorError(err error) *pkgerrors.ProcessorError {
	var se *stripego.Error
	if !errors.As(err, &se) {
		pe := pkgerrors.NewProcessorError("network_error", "could not reach the payment processor", pkgerrors.CategoryNetworkError, true)
		pe.Err = err
		return pe
	}

	code := string(se.Code)
	if code == "" {
		code = string(se.Type)
	}

	var pe *pkgerrors.ProcessorError
	switch {
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		pe = pkgerrors.NewProcessorError(code, "payment processor rate limit reached", pkgerrors.CategoryRateLimited, true)
	case se.HTTPStatusCode == http.StatusUnauthorized || se.HTTPStatusCode == http.StatusForbidden:
		pe = pkgerrors.NewProcessorError(code, "payment processor rejected the platform credentials", pkgerrors.CategoryAuthentication, false)
	case se.Type == stripego.ErrorTypeCard:
		pe = pkgerrors.NewProcessorError(code, "payment was declined", pkgerrors.CategoryDeclined, false)
	case se.Type == stripego.ErrorTypeInvalidRequest:
		pe = pkgerrors.NewProcessorError(code, "payment processor rejected the request", pkgerrors.CategoryInvalidRequest, false)
	case se.Type == stripego.ErrorTypeIdempotency:
		pe = pkgerrors.NewProcessorError(code, "conflicting retry of an earlier request", pkgerrors.CategoryIdempotency, false)
	default:
		pe = pkgerrors.NewProcessorError(code, "payment processor error", pkgerrors.CategorySystemError, se.HTTPStatusCode >= 500)
	}

	pe.ProcessorMessage = se.Msg
	pe.RequestID = se.RequestID
	pe.HTTPStatus = se.HTTPStatusCode
	pe.Err = err
	if se.Param != "" {
		pe.Details["param"] = se.Param
	}
	return pe
}

// wrapError turns an SDK error into a PROCESSOR_ERROR domain error
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	pe := toProcessorError(err)
	return domain.NewProcessorError(pe.UserMessage(), pe)
}
