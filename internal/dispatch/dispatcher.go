// Package dispatch drives one scoring request from raw decoded JSON to a
// classification: normalize the payload, then hand it to the scorer chosen
// at startup.
package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"riskd/internal/normalize"
	"riskd/internal/scorer"
	"riskd/pkg/types"
)

// State names a step of the per-request state machine.
type State string

const (
	StateReceived      State = "received"
	StateNormalizing   State = "normalizing"
	StateRemoteScoring State = "remote_scoring"
	StateLocalScoring  State = "local_scoring"
	StateSucceeded     State = "succeeded"
	StateFailed        State = "failed"
)

// NoMLNote is reported by Ready when scoring runs locally.
const NoMLNote = "no-ML_URL"

// Dispatcher routes requests to a single Scorer. The scoring mode is fixed at
// construction and never re-evaluated; there is no fallback between modes.
type Dispatcher struct {
	scorer scorer.Scorer
	mode   scorer.Mode
}

// New returns a Dispatcher bound to s.
func New(s scorer.Scorer) *Dispatcher {
	return &Dispatcher{scorer: s, mode: s.Mode()}
}

// Mode returns the scoring mode chosen at startup.
func (d *Dispatcher) Mode() scorer.Mode { return d.mode }

// Handle normalizes raw and scores it. Every error is a *scorer.Failure.
func (d *Dispatcher) Handle(ctx context.Context, raw any) (types.ScoringResult, error) {
	logger := zerolog.Ctx(ctx).With().Str("mode", string(d.mode)).Logger()
	start := time.Now()
	transition := func(s State) { logger.Debug().Str("state", string(s)).Msg("dispatch") }

	transition(StateReceived)
	transition(StateNormalizing)
	in, err := normalize.Normalize(raw)
	if err != nil {
		err = scorer.Validation(err)
		d.fail(&logger, start, err)
		return types.ScoringResult{}, err
	}

	if d.mode == scorer.ModeRemote {
		transition(StateRemoteScoring)
	} else {
		transition(StateLocalScoring)
	}
	res, err := d.scorer.Score(logger.WithContext(ctx), in)
	if err != nil {
		var f *scorer.Failure
		if !errors.As(err, &f) {
			// Scorers only return *Failure; anything else is classified by mode.
			if d.mode == scorer.ModeRemote {
				err = &scorer.Failure{Kind: scorer.KindRemoteUnavailable, Err: err}
			} else {
				err = &scorer.Failure{Kind: scorer.KindLocalProcessError, ExitCode: -1, Err: err}
			}
		}
		d.fail(&logger, start, err)
		return types.ScoringResult{}, err
	}
	scorer.ObserveOutcome(d.mode, nil)
	logger.Debug().Str("state", string(StateSucceeded)).Dur("dur", time.Since(start)).Msg("dispatch")
	return res, nil
}

func (d *Dispatcher) fail(logger *zerolog.Logger, start time.Time, err error) {
	scorer.ObserveOutcome(d.mode, err)
	logger.Debug().Str("state", string(StateFailed)).Str("kind", string(scorer.KindOf(err))).
		Dur("dur", time.Since(start)).Err(err).Msg("dispatch")
}

// Ready reports readiness. In remote mode the remote scorer is probed; the
// second return value is false when it did not answer successfully.
func (d *Dispatcher) Ready(ctx context.Context) (types.ReadyResponse, bool) {
	p, ok := d.scorer.(scorer.Prober)
	if d.mode != scorer.ModeRemote || !ok {
		return types.ReadyResponse{Ready: true, Note: NoMLNote}, true
	}
	if err := p.Probe(ctx); err != nil {
		resp := types.ReadyResponse{Ready: false, ML: false}
		var pe *scorer.ProbeError
		if errors.As(err, &pe) && pe.Status > 0 {
			resp.Status = pe.Status
		} else {
			resp.Error = err.Error()
		}
		zerolog.Ctx(ctx).Warn().Err(err).Msg("remote scorer not ready")
		return resp, false
	}
	return types.ReadyResponse{Ready: true, ML: true}, true
}
