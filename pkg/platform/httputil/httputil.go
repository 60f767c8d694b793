// Package httputil centralizes request decoding, validation and response
// encoding so handlers stay thin and every endpoint speaks the same JSON
// envelope.
package httputil

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"

	dErrors "enroll/pkg/domain-errors"
)

// maxBodyBytes bounds request body reads. Registration payloads are small;
// anything bigger is abuse.
const maxBodyBytes = 1 << 20

var validate = validator.New(validator.WithRequiredStructEnabled())

// DecodeAndPrepare reads a JSON body into T and runs struct validation.
// On failure it writes the error response itself and returns ok=false.
func DecodeAndPrepare[T any](w http.ResponseWriter, r *http.Request, logger *slog.Logger, ctx context.Context, requestID string) (T, bool) {
	var req T

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		logger.WarnContext(ctx, "malformed request body",
			"request_id", requestID,
			"error", err,
		)
		WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "malformed JSON body"))
		return req, false
	}

	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			WriteError(w, dErrors.Newf(dErrors.CodeInvalidInput, "invalid field %q", verrs[0].Field()))
		} else {
			WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request"))
		}
		return req, false
	}

	return req, true
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteError translates a domain error into a status code and JSON envelope.
// Internal and backend failures keep their message out of the response body;
// everything else is user-actionable and passed through.
func WriteError(w http.ResponseWriter, err error) {
	code := dErrors.CodeOf(err)
	env := errorEnvelope{Error: string(code)}

	if code != dErrors.CodeInternal && code != dErrors.CodeBackend {
		var de *dErrors.Error
		if errors.As(err, &de) {
			env.ErrorDescription = de.Message
		}
	}

	WriteJSON(w, dErrors.ToHTTPStatus(code), env)
}
