// Package reqctx assigns the per-request correlation identifier and carries
// it, together with a request-scoped logger, through context.Context.
package reqctx

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// HeaderRequestID carries the correlation identifier on requests and responses.
const HeaderRequestID = "X-Request-ID"

const maxIDLen = 128

// RequestContext identifies one request/response cycle. It is immutable once
// created.
type RequestContext struct {
	ID         string
	ReceivedAt time.Time
}

// New reuses a caller-supplied identifier when it is usable, otherwise it
// generates a fresh random one.
func New(supplied string) RequestContext {
	id := strings.TrimSpace(supplied)
	if !validID(id) {
		id = uuid.NewString()
	}
	return RequestContext{ID: id, ReceivedAt: time.Now()}
}

// validID accepts 1..128 printable, non-space ASCII characters.
func validID(s string) bool {
	if s == "" || len(s) > maxIDLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 0x21 || s[i] > 0x7e {
			return false
		}
	}
	return true
}

type ctxKey struct{}

// WithContext returns a copy of ctx carrying rc.
func WithContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext stored in ctx, if any.
func FromContext(ctx context.Context) (RequestContext, bool) {
	rc, ok := ctx.Value(ctxKey{}).(RequestContext)
	return rc, ok
}

// ID returns the correlation identifier stored in ctx, or "".
func ID(ctx context.Context) string {
	rc, _ := FromContext(ctx)
	return rc.ID
}

// Middleware creates a RequestContext for every request, echoes its
// identifier in the response header and installs a logger carrying
// request_id on the request context (retrievable with zerolog.Ctx).
func Middleware(base zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rc := New(r.Header.Get(HeaderRequestID))
			w.Header().Set(HeaderRequestID, rc.ID)
			l := base.With().Str("request_id", rc.ID).Logger()
			ctx := l.WithContext(WithContext(r.Context(), rc))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
