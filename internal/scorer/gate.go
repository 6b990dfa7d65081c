package scorer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"riskd/pkg/types"
)

// Defaults applied when corresponding GateConfig fields are unset.
const (
	defaultGateQueue   = 32
	defaultGateMaxWait = 30 * time.Second
)

// GateConfig bounds how many scoring calls run at once.
type GateConfig struct {
	// MaxConcurrent is the number of calls scoring at the same time.
	MaxConcurrent int
	// MaxQueue is the number of calls allowed to wait for a slot.
	MaxQueue int
	// MaxWait bounds each admission step.
	MaxWait time.Duration
}

// Gate wraps a Scorer with queue-then-slot admission. Callers that cannot
// reserve a queue position or a slot within MaxWait fail with KindOverloaded.
type Gate struct {
	next    Scorer
	queueCh chan struct{}
	slotCh  chan struct{}
	maxWait time.Duration
}

// NewGate wraps next with admission control.
func NewGate(next Scorer, cfg GateConfig) *Gate {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.NumCPU()
	}
	if cfg.MaxQueue < 0 {
		cfg.MaxQueue = 0
	} else if cfg.MaxQueue == 0 {
		cfg.MaxQueue = defaultGateQueue
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultGateMaxWait
	}
	return &Gate{
		next:    next,
		queueCh: make(chan struct{}, cfg.MaxQueue+cfg.MaxConcurrent),
		slotCh:  make(chan struct{}, cfg.MaxConcurrent),
		maxWait: cfg.MaxWait,
	}
}

func (g *Gate) Mode() Mode { return g.next.Mode() }

// Probe forwards to the wrapped scorer when it supports probing.
func (g *Gate) Probe(ctx context.Context) error {
	if p, ok := g.next.(Prober); ok {
		return p.Probe(ctx)
	}
	return nil
}

// Score admits the call and delegates to the wrapped scorer.
func (g *Gate) Score(ctx context.Context, in types.NormalizedInput) (types.ScoringResult, error) {
	release, err := g.acquire(ctx)
	if err != nil {
		return types.ScoringResult{}, err
	}
	defer release()
	return g.next.Score(ctx, in)
}

// acquire reserves a queue position and then a slot. The returned release
// func must be called exactly once on success.
func (g *Gate) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, overloaded("request canceled before admission", err)
	}

	timer := time.NewTimer(g.maxWait)
	defer timer.Stop()
	select {
	case g.queueCh <- struct{}{}:
	case <-ctx.Done():
		return nil, overloaded("request canceled while queued", ctx.Err())
	case <-timer.C:
		incrementBackpressure("queue")
		return nil, overloaded("admission queue full", nil)
	}

	gateWaiting.Inc()
	acquired := false
	defer func() {
		gateWaiting.Dec()
		if !acquired {
			<-g.queueCh
		}
	}()

	timer2 := time.NewTimer(g.maxWait)
	defer timer2.Stop()
	select {
	case g.slotCh <- struct{}{}:
		acquired = true
		gateInflight.Inc()
		return func() {
			gateInflight.Dec()
			<-g.slotCh
			<-g.queueCh
		}, nil
	case <-ctx.Done():
		return nil, overloaded("request canceled while waiting for a slot", ctx.Err())
	case <-timer2.C:
		incrementBackpressure("slot")
		return nil, overloaded("no scoring slot freed up in time", nil)
	}
}

func overloaded(msg string, cause error) *Failure {
	if cause != nil {
		return &Failure{Kind: KindOverloaded, Err: fmt.Errorf("%s: %w", msg, cause)}
	}
	return &Failure{Kind: KindOverloaded, Err: errors.New(msg)}
}
