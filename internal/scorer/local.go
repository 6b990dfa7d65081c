package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/rs/zerolog"

	"riskd/pkg/types"
)

// Defaults applied when corresponding LocalConfig fields are unset.
const (
	defaultLocalTimeout = 10 * time.Second
	defaultStdoutLimit  = 1 << 20
	defaultStderrLimit  = 2000
	maxRawExcerpt       = 512
)

// LocalConfig holds the tunables of the local scoring path.
type LocalConfig struct {
	// Command is the executable and its arguments, e.g. ["python3", "ml/predict.py"].
	Command []string
	// Dir is the working directory of the scorer; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env         []string
	Timeout     time.Duration
	StdoutLimit int
	StderrLimit int
}

// LocalRunner scores a payload by running one scorer process per call. The
// process reads the payload as JSON from stdin and writes its result to stdout.
type LocalRunner struct {
	cfg       LocalConfig
	publisher EventPublisher
}

// NewLocalRunner constructs a local scorer.
func NewLocalRunner(cfg LocalConfig) *LocalRunner {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLocalTimeout
	}
	if cfg.StdoutLimit <= 0 {
		cfg.StdoutLimit = defaultStdoutLimit
	}
	if cfg.StderrLimit <= 0 {
		cfg.StderrLimit = defaultStderrLimit
	}
	cfg.Command = append([]string(nil), cfg.Command...)
	return &LocalRunner{cfg: cfg, publisher: noopPublisher{}}
}

// SetPublisher installs an EventPublisher for process lifecycle events.
func (r *LocalRunner) SetPublisher(p EventPublisher) {
	if p == nil {
		r.publisher = noopPublisher{}
		return
	}
	r.publisher = p
}

func (r *LocalRunner) Mode() Mode { return ModeLocal }

// Score runs the scorer once. The process is killed (SIGKILL, whole process
// group) when it outlives Timeout or ctx.
func (r *LocalRunner) Score(ctx context.Context, in types.NormalizedInput) (types.ScoringResult, error) {
	payload, err := json.Marshal(in)
	if err != nil {
		return types.ScoringResult{}, Validation(fmt.Errorf("encode payload: %w", err))
	}
	if len(r.cfg.Command) == 0 {
		return types.ScoringResult{}, &Failure{Kind: KindLocalProcessError, ExitCode: -1, Err: errors.New("no local scorer command configured")}
	}
	logger := zerolog.Ctx(ctx)

	cmd := exec.Command(r.cfg.Command[0], r.cfg.Command[1:]...)
	cmd.Dir = r.cfg.Dir
	if len(r.cfg.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.cfg.Env...)
	}
	cmd.Stdin = bytes.NewReader(payload)
	stdout := newLimitedBuffer(r.cfg.StdoutLimit)
	stderr := newLimitedBuffer(r.cfg.StderrLimit)
	lines := &lineLogger{log: logger}
	cmd.Stdout = stdout
	cmd.Stderr = io.MultiWriter(stderr, lines)
	// Bounds Wait if a stray descendant keeps the pipes open after exit.
	cmd.WaitDelay = time.Second
	isolateProcess(cmd)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		localProcessDuration.WithLabelValues("start_error").Observe(0)
		r.publisher.Publish(Event{Name: "spawn_error", Fields: map[string]any{"error": err.Error()}})
		logger.Error().Err(err).Strs("command", r.cfg.Command).Msg("local scorer failed to start")
		return types.ScoringResult{}, &Failure{Kind: KindLocalProcessError, ExitCode: -1, Stderr: err.Error(), Err: err}
	}
	pid := cmd.Process.Pid
	lines.pid = pid
	logger.Debug().Int("pid", pid).Msg("local scorer started")
	r.publisher.Publish(Event{Name: "spawn_start", PID: pid, Fields: map[string]any{"command": r.cfg.Command[0]}})

	waitErrCh := make(chan error, 1)
	go func() {
		waitErrCh <- cmd.Wait()
	}()

	timer := time.NewTimer(r.cfg.Timeout)
	defer timer.Stop()

	var cause error
	select {
	case werr := <-waitErrCh:
		timer.Stop()
		lines.Flush()
		return r.finish(logger, pid, start, werr, stdout, stderr)
	case <-timer.C:
		cause = fmt.Errorf("local scorer did not exit within %s", r.cfg.Timeout)
	case <-ctx.Done():
		cause = fmt.Errorf("local scorer canceled: %w", ctx.Err())
	}

	if err := killProcess(cmd); err != nil {
		logger.Error().Err(err).Int("pid", pid).Msg("kill local scorer")
	}
	<-waitErrCh
	lines.Flush()
	dur := time.Since(start)
	localProcessDuration.WithLabelValues("timeout").Observe(dur.Seconds())
	logger.Warn().Int("pid", pid).Dur("dur", dur).Msg("local scorer killed")
	r.publisher.Publish(Event{Name: "spawn_timeout", PID: pid, Fields: map[string]any{"dur": dur}})
	return types.ScoringResult{}, &Failure{Kind: KindLocalTimeout, Err: cause}
}

// finish interprets a process that exited on its own.
func (r *LocalRunner) finish(logger *zerolog.Logger, pid int, start time.Time, werr error, stdout, stderr *limitedBuffer) (types.ScoringResult, error) {
	dur := time.Since(start)
	// ErrWaitDelay means the scorer exited cleanly but left its pipes open.
	exitCode := -1
	var exitErr *exec.ExitError
	switch {
	case werr == nil, errors.Is(werr, exec.ErrWaitDelay):
		exitCode = 0
	case errors.As(werr, &exitErr):
		exitCode = exitErr.ExitCode()
	}
	r.publisher.Publish(Event{Name: "spawn_exit", PID: pid, Fields: map[string]any{"exit_code": exitCode, "dur": dur}})

	if exitCode != 0 {
		localProcessDuration.WithLabelValues("exit_error").Observe(dur.Seconds())
		stderrText := excerpt(stderr.Bytes(), r.cfg.StderrLimit)
		logger.Warn().Int("pid", pid).Int("exit_code", exitCode).Dur("dur", dur).Str("stderr", stderrText).Msg("local scorer failed")
		return types.ScoringResult{}, &Failure{Kind: KindLocalProcessError, ExitCode: exitCode, Stderr: stderrText, Err: werr}
	}

	out := stdout.Bytes()
	if stdout.Truncated() {
		localProcessDuration.WithLabelValues("malformed").Observe(dur.Seconds())
		return types.ScoringResult{}, &Failure{Kind: KindLocalMalformedOutput, Raw: excerpt(out, maxRawExcerpt),
			Err: fmt.Errorf("scorer output exceeded %d bytes", r.cfg.StdoutLimit)}
	}
	res, err := types.ParseScoringResult(out)
	if err != nil {
		localProcessDuration.WithLabelValues("malformed").Observe(dur.Seconds())
		raw := excerpt(out, maxRawExcerpt)
		logger.Warn().Int("pid", pid).Str("raw", raw).Err(err).Msg("local scorer output unusable")
		return types.ScoringResult{}, &Failure{Kind: KindLocalMalformedOutput, Raw: raw, Err: err}
	}
	localProcessDuration.WithLabelValues("ok").Observe(dur.Seconds())
	logger.Debug().Int("pid", pid).Dur("dur", dur).Msg("local scorer finished")
	return res, nil
}
