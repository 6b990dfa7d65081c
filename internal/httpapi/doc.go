// Package httpapi exposes the scoring service over HTTP.
//
// Routes:
//
//   - GET  /             service banner
//   - GET  /healthz      liveness
//   - GET  /readyz       readiness; probes the remote scorer in remote mode
//   - POST /api/predict  score one record, a batch, or a feature matrix
//   - GET  /metrics      Prometheus exposition
//
// Every response carries X-Request-ID. Errors are JSON documents of type
// types.ErrorResponse whose kind field names the failure.
package httpapi
