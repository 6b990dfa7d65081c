package scorer

import (
	"context"

	"riskd/pkg/types"
)

// Mode names the scoring path chosen at startup.
type Mode string

const (
	ModeRemote Mode = "remote"
	ModeLocal  Mode = "local"
)

// Scorer turns a canonical payload into a ScoringResult. Failures are
// returned as *Failure.
type Scorer interface {
	Score(ctx context.Context, in types.NormalizedInput) (types.ScoringResult, error)
	Mode() Mode
}

// Prober is implemented by scorers that can report upstream readiness.
type Prober interface {
	Probe(ctx context.Context) error
}
