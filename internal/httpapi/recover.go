package httpapi

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
)

// recoverer turns a handler panic into a logged 500 JSON error.
func recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			panicsTotal.Inc()
			zerolog.Ctx(r.Context()).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("handler panic")
			writeJSONError(w, r, http.StatusInternalServerError, kindInternal, "internal error", "")
		}()
		next.ServeHTTP(w, r)
	})
}
