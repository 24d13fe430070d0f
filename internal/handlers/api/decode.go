package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/kevin07696/payme-service/internal/auth"
	"github.com/kevin07696/payme-service/internal/domain"
)

const maxRequestBytes = 1 << 20

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// principal returns the authenticated caller. The auth middleware guarantees one
// on every route that calls this.
func principal(r *http.Request) *domain.Principal {
	return auth.PrincipalFromContext(r.Context())
}
