package scorer

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskd/pkg/types"
)

func singleRecord() types.NormalizedInput {
	return types.NewInput(map[string]any{"age": 63, "sex": 1, "cp": 3})
}

func TestLocalRunnerSingleRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	r, pub := fakeRunner(t, "echo", 5*time.Second)
	res, err := r.Score(testCtx(t), singleRecord())
	require.NoError(t, err)
	require.NotNil(t, res.Prediction)
	assert.Equal(t, 1, *res.Prediction)
	assert.InDelta(t, 0.75, *res.Probability, 1e-9)
	assert.Equal(t, []string{"spawn_start", "spawn_exit"}, pub.Names())
	assert.Equal(t, ModeLocal, r.Mode())
}

func TestLocalRunnerBatch(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	r, _ := fakeRunner(t, "echo", 5*time.Second)
	in := types.NewValues([]any{[]any{1, 2}, []any{3, 4}, []any{5, 6}})
	res, err := r.Score(testCtx(t), in)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 0}, res.Predictions)
	assert.Len(t, res.Probabilities, 3)
}

func TestLocalRunnerTimeoutKillsProcess(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	r, pub := fakeRunner(t, "sleep", 200*time.Millisecond)
	start := time.Now()
	_, err := r.Score(testCtx(t), singleRecord())
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, IsKind(err, KindLocalTimeout), "got %v", err)
	assert.Less(t, elapsed, 3*time.Second)

	events := pub.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, "spawn_start", events[0].Name)
	assert.Equal(t, "spawn_timeout", events[len(events)-1].Name)
	pid := events[0].PID
	require.Positive(t, pid)
	// The child has been reaped; signaling it must fail.
	assert.True(t, errors.Is(syscall.Kill(pid, 0), syscall.ESRCH), "scorer process %d still alive", pid)
}

func TestLocalRunnerContextCancel(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	r, _ := fakeRunner(t, "sleep", 10*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.Score(ctx, singleRecord())
	assert.True(t, IsKind(err, KindLocalTimeout))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocalRunnerNonZeroExit(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	r, _ := fakeRunner(t, "fail", 5*time.Second)
	_, err := r.Score(testCtx(t), singleRecord())
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindLocalProcessError, f.Kind)
	assert.Equal(t, 1, f.ExitCode)
	assert.Contains(t, f.Stderr, "bad feature")
	assert.Equal(t, 500, f.StatusCode())
}

func TestLocalRunnerMalformedOutput(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	for _, mode := range []string{"garbage", "errordoc", "huge"} {
		t.Run(mode, func(t *testing.T) {
			r, _ := fakeRunner(t, mode, 5*time.Second)
			_, err := r.Score(testCtx(t), singleRecord())
			var f *Failure
			require.ErrorAs(t, err, &f)
			assert.Equal(t, KindLocalMalformedOutput, f.Kind)
			assert.LessOrEqual(t, len(f.Raw), maxRawExcerpt)
		})
	}
}

func TestLocalRunnerLogsStderr(t *testing.T) {
	if testing.Short() {
		t.Skip("short mode")
	}
	var logs syncBuffer
	r, _ := fakeRunner(t, "noisy", 5*time.Second)
	res, err := r.Score(loggedCtx(t, &logs), singleRecord())
	require.NoError(t, err)
	assert.Equal(t, 0, *res.Prediction)
	assert.Contains(t, logs.String(), "loading model")
	assert.Contains(t, logs.String(), "warming up")
}

func TestLocalRunnerStartFailure(t *testing.T) {
	r := NewLocalRunner(LocalConfig{Command: []string{"/nonexistent/riskd-scorer"}})
	pub := NewMemoryPublisher()
	r.SetPublisher(pub)
	_, err := r.Score(testCtx(t), singleRecord())
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, KindLocalProcessError, f.Kind)
	assert.Equal(t, -1, f.ExitCode)
	assert.NotEmpty(t, f.Stderr)
	assert.Equal(t, []string{"spawn_error"}, pub.Names())
}

func TestLocalRunnerNoCommand(t *testing.T) {
	r := NewLocalRunner(LocalConfig{})
	_, err := r.Score(testCtx(t), singleRecord())
	assert.True(t, IsKind(err, KindLocalProcessError))
}

func TestLocalRunnerRejectsUntaggedInput(t *testing.T) {
	r := NewLocalRunner(LocalConfig{Command: []string{"true"}})
	_, err := r.Score(testCtx(t), types.NormalizedInput{})
	assert.True(t, IsKind(err, KindValidation))
}
