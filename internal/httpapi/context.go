package httpapi

import (
	"context"
	"net/http"
)

// scoringContext detaches scoring work from client cancellation. A caller
// that disconnects does not abort an in-flight remote call or kill a local
// scorer; both end through their own timeouts. Values (request id, logger)
// are preserved.
func scoringContext(r *http.Request) context.Context {
	return context.WithoutCancel(r.Context())
}
