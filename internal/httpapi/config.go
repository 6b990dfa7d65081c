package httpapi

import (
	"github.com/rs/zerolog"
)

const (
	defaultServiceName  = "heart-risk-backend"
	defaultMaxBodyBytes = 200 << 10
)

// Options configures the HTTP layer. Zero values fall back to defaults.
type Options struct {
	// ServiceName is reported by GET /.
	ServiceName string
	// FrontendURL is the single allowed CORS origin; empty or "*" allows any.
	FrontendURL string
	// MaxBodyBytes bounds the request body of POST /api/predict.
	MaxBodyBytes int64
	// Logger is the base logger; every request gets a child carrying request_id.
	Logger zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.ServiceName == "" {
		o.ServiceName = defaultServiceName
	}
	if o.MaxBodyBytes <= 0 {
		o.MaxBodyBytes = defaultMaxBodyBytes
	}
	return o
}

// allowedOrigins returns the CORS origin list derived from FrontendURL.
func (o Options) allowedOrigins() []string {
	if o.FrontendURL == "" || o.FrontendURL == "*" {
		return []string{"*"}
	}
	return []string{o.FrontendURL}
}
