package scorer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskd/pkg/types"
)

// blockingScorer holds every call until release is closed.
type blockingScorer struct {
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func newBlockingScorer() *blockingScorer {
	return &blockingScorer{started: make(chan struct{}, 16), release: make(chan struct{})}
}

func (s *blockingScorer) Mode() Mode { return ModeLocal }

func (s *blockingScorer) Score(ctx context.Context, in types.NormalizedInput) (types.ScoringResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	s.started <- struct{}{}
	<-s.release
	one := 1
	return types.ScoringResult{Prediction: &one}, nil
}

type probingScorer struct {
	*blockingScorer
	err error
}

func (p *probingScorer) Probe(context.Context) error { return p.err }

func TestGateRejectsWhenSlotsBusy(t *testing.T) {
	inner := newBlockingScorer()
	g := NewGate(inner, GateConfig{MaxConcurrent: 1, MaxQueue: 1, MaxWait: 50 * time.Millisecond})

	done := make(chan error, 1)
	go func() {
		_, err := g.Score(testCtx(t), types.NewValues([]any{}))
		done <- err
	}()
	<-inner.started

	_, err := g.Score(testCtx(t), types.NewValues([]any{}))
	require.Error(t, err)
	assert.True(t, IsKind(err, KindOverloaded), "got %v", err)

	close(inner.release)
	require.NoError(t, <-done)
}

func TestGateQueueFull(t *testing.T) {
	inner := newBlockingScorer()
	// One slot and no queue: the queue channel has capacity for the running call only.
	g := NewGate(inner, GateConfig{MaxConcurrent: 1, MaxQueue: -1, MaxWait: 30 * time.Millisecond})

	go func() { _, _ = g.Score(context.Background(), types.NewValues([]any{})) }()
	<-inner.started

	start := time.Now()
	_, err := g.Score(testCtx(t), types.NewValues([]any{}))
	assert.True(t, IsKind(err, KindOverloaded))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
	close(inner.release)
}

func TestGateReleasesSlots(t *testing.T) {
	inner := newBlockingScorer()
	close(inner.release)
	g := NewGate(inner, GateConfig{MaxConcurrent: 2, MaxQueue: 2, MaxWait: time.Second})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := g.Score(testCtx(t), types.NewValues([]any{}))
			if assert.NoError(t, err) {
				assert.Equal(t, 1, *res.Prediction)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, inner.calls)
	assert.Len(t, g.slotCh, 0)
	assert.Len(t, g.queueCh, 0)
}

func TestGateCanceledContext(t *testing.T) {
	g := NewGate(newBlockingScorer(), GateConfig{MaxConcurrent: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := g.Score(ctx, types.NewValues([]any{}))
	assert.True(t, IsKind(err, KindOverloaded))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestGateForwardsModeAndProbe(t *testing.T) {
	p := &probingScorer{blockingScorer: newBlockingScorer(), err: &ProbeError{Status: 503}}
	g := NewGate(p, GateConfig{})
	assert.Equal(t, ModeLocal, g.Mode())
	var pe *ProbeError
	require.ErrorAs(t, g.Probe(testCtx(t)), &pe)
	assert.Equal(t, 503, pe.Status)

	assert.NoError(t, NewGate(newBlockingScorer(), GateConfig{}).Probe(testCtx(t)))
}
