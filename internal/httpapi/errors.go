package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"riskd/internal/reqctx"
	"riskd/internal/scorer"
	"riskd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// Kinds for failures raised by the HTTP layer itself.
const (
	kindBadRequest      = "BadRequest"
	kindPayloadTooLarge = "PayloadTooLarge"
	kindUnsupportedType = "UnsupportedMediaType"
	kindInternal        = "Internal"
)

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, kind, msg, details string) {
	writeJSON(w, status, types.ErrorResponse{
		Error:     msg,
		Kind:      kind,
		Details:   details,
		Code:      status,
		RequestID: reqctx.ID(r.Context()),
	})
}

// writeFailure maps a dispatch error to its response. Failures carry their
// own status; any other HTTPError is honored; everything else is a 500.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) int {
	var f *scorer.Failure
	if errors.As(err, &f) {
		status := f.StatusCode()
		resp := types.ErrorResponse{
			Error:     f.Summary(),
			Kind:      string(f.Kind),
			Details:   f.Details(),
			Code:      status,
			RequestID: reqctx.ID(r.Context()),
		}
		if f.Kind == scorer.KindRemoteRejected {
			resp.Status = f.Status
		}
		writeJSON(w, status, resp)
		return status
	}
	var he HTTPError
	if errors.As(err, &he) {
		writeJSONError(w, r, he.StatusCode(), kindInternal, he.Error(), "")
		return he.StatusCode()
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Msg("unclassified scoring error")
	writeJSONError(w, r, http.StatusInternalServerError, kindInternal, "internal error", err.Error())
	return http.StatusInternalServerError
}
