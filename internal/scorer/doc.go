// Package scorer turns canonical feature payloads into risk classifications
// through one of two interchangeable paths chosen at startup. It is split by
// concern:
//
//   - scorer.go: the Scorer and Prober interfaces and the Mode names.
//   - errors.go: the Failure type, failure kinds and their HTTP statuses.
//   - remote.go: RemoteClient, HTTP calls to the scoring service with
//     exponential backoff and a readiness probe.
//   - breaker.go: optional circuit breaker around remote attempts.
//   - local.go: LocalRunner, one scorer process per call fed through
//     stdin/stdout and killed with its process group on timeout.
//   - proc_unix.go, proc_other.go: process-group helpers.
//   - output.go: bounded capture of process output and stderr line logging.
//   - gate.go: queue-then-slot admission in front of any Scorer.
//   - events.go: process lifecycle events for tests and diagnostics.
//   - metrics.go: Prometheus collectors.
//
// Every error returned by a Scorer is a *Failure; use KindOf or IsKind to
// classify it.
package scorer
