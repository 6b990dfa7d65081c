package types

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Human-readable summary.
	// example: scorer unavailable
	Error string `json:"error" example:"scorer unavailable"`
	// Stable failure kind, suitable for client-side branching.
	// example: RemoteUnavailable
	Kind string `json:"kind" example:"RemoteUnavailable"`
	// Upstream HTTP status when the remote scorer answered.
	// example: 500
	Status int `json:"status,omitempty" example:"500"`
	// Free-form diagnostics (upstream body, stderr excerpt, parse error).
	Details string `json:"details,omitempty"`
	// HTTP status code of this response.
	// example: 504
	Code int `json:"code" example:"504"`
	// Correlation identifier, also sent as X-Request-ID.
	// example: 0f8fad5b-d9cb-469f-a165-70867728950e
	RequestID string `json:"request_id,omitempty" example:"0f8fad5b-d9cb-469f-a165-70867728950e"`
}

// RootResponse is returned by GET /.
type RootResponse struct {
	// example: heart-risk-backend
	Service string `json:"service" example:"heart-risk-backend"`
	// example: running
	Status string `json:"status" example:"running"`
	// Allowed caller origin, when one is configured.
	// example: https://heart.example.com
	Frontend string `json:"frontend,omitempty" example:"https://heart.example.com"`
}

// HealthResponse is returned by GET /healthz.
type HealthResponse struct {
	// example: ok
	Status string `json:"status" example:"ok"`
}

// ReadyResponse is returned by GET /readyz.
type ReadyResponse struct {
	// example: true
	Ready bool `json:"ready" example:"true"`
	// True when a remote scorer is configured and answered its readiness probe.
	// example: false
	ML bool `json:"ml" example:"false"`
	// Upstream status when the probe got a non-success answer.
	Status int `json:"status,omitempty"`
	// Probe error when no answer was obtained.
	Error string `json:"error,omitempty"`
	// Set when no remote scorer is configured.
	// example: no-ML_URL
	Note string `json:"note,omitempty" example:"no-ML_URL"`
}
