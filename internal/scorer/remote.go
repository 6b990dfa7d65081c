package scorer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"riskd/internal/reqctx"
	"riskd/pkg/types"
)

// Defaults applied when corresponding RemoteConfig fields are unset.
const (
	defaultAttemptTimeout = 8 * time.Second
	defaultReadyTimeout   = 1200 * time.Millisecond
	defaultDialTimeout    = 5 * time.Second

	maxRemoteResponseBytes = 1 << 20
	maxRemoteBodyExcerpt   = 4096
)

// RemoteConfig holds the tunables of the remote scoring path.
type RemoteConfig struct {
	// Endpoint is the scorer base URL; requests go to Endpoint+"/predict".
	Endpoint       string
	AttemptTimeout time.Duration
	// Retries is the number of additional attempts after the first one.
	Retries      int
	BackoffBase  time.Duration
	ReadyTimeout time.Duration
	DialTimeout  time.Duration
	Breaker      BreakerConfig
}

// RemoteClient scores payloads by POSTing them to a remote scoring service,
// retrying failed attempts with exponential backoff.
type RemoteClient struct {
	cfg        RemoteConfig
	endpoint   string
	httpClient *http.Client
	breaker    *breaker
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRemoteClient constructs a remote scorer.
func NewRemoteClient(cfg RemoteConfig) *RemoteClient {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.BackoffBase < 0 {
		cfg.BackoffBase = 0
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = (&net.Dialer{
		Timeout:   cfg.DialTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	tr.MaxIdleConnsPerHost = 16
	// Timeout=0: every call carries its own context deadline.
	cli := &http.Client{Transport: otelhttp.NewTransport(tr), Timeout: 0}
	return &RemoteClient{
		cfg:        cfg,
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: cli,
		breaker:    newBreaker(cfg.Breaker),
		sleep:      sleepContext,
	}
}

func (c *RemoteClient) Mode() Mode { return ModeRemote }

// Endpoint returns the normalized base URL.
func (c *RemoteClient) Endpoint() string { return c.endpoint }

// attemptError describes one failed attempt. status is zero when no HTTP
// response was obtained.
type attemptError struct {
	status int
	body   string
	err    error
}

func (e *attemptError) Error() string { return e.err.Error() }

func (e *attemptError) failure() *Failure {
	if e.status > 0 {
		return &Failure{Kind: KindRemoteRejected, Status: e.status, Body: e.body, Err: e.err}
	}
	return &Failure{Kind: KindRemoteUnavailable, Err: e.err}
}

// Score sends the payload to {endpoint}/predict, making at most Retries+1
// attempts and sleeping BackoffBase*2^attempt between them.
func (c *RemoteClient) Score(ctx context.Context, in types.NormalizedInput) (types.ScoringResult, error) {
	body, err := json.Marshal(in)
	if err != nil {
		return types.ScoringResult{}, Validation(fmt.Errorf("encode payload: %w", err))
	}
	logger := zerolog.Ctx(ctx)
	url := c.endpoint + "/predict"
	for attempt := 0; ; attempt++ {
		start := time.Now()
		res, aerr := c.attempt(ctx, url, body)
		if aerr == nil {
			remoteAttemptsTotal.WithLabelValues("ok").Inc()
			logger.Debug().Int("attempt", attempt).Dur("dur", time.Since(start)).Msg("remote scorer answered")
			return res, nil
		}
		if aerr.status > 0 {
			remoteAttemptsTotal.WithLabelValues("rejected").Inc()
		} else {
			remoteAttemptsTotal.WithLabelValues("unavailable").Inc()
		}
		logger.Warn().Int("attempt", attempt).Int("status", aerr.status).Dur("dur", time.Since(start)).
			Err(aerr.err).Msg("remote scorer attempt failed")
		if attempt >= c.cfg.Retries {
			return types.ScoringResult{}, aerr.failure()
		}
		delay := c.cfg.BackoffBase * time.Duration(int64(1)<<attempt)
		remoteRetriesTotal.Inc()
		if err := c.sleep(ctx, delay); err != nil {
			return types.ScoringResult{}, &Failure{Kind: KindRemoteUnavailable, Err: fmt.Errorf("retry canceled: %w", err)}
		}
	}
}

// attempt performs one bounded round trip through the optional breaker.
func (c *RemoteClient) attempt(ctx context.Context, url string, body []byte) (types.ScoringResult, *attemptError) {
	var res types.ScoringResult
	err := c.breaker.run(func() error {
		var aerr *attemptError
		res, aerr = c.roundTrip(ctx, url, body)
		if aerr != nil {
			return aerr
		}
		return nil
	})
	if err == nil {
		return res, nil
	}
	var aerr *attemptError
	if errors.As(err, &aerr) {
		return res, aerr
	}
	return res, &attemptError{err: err}
}

func (c *RemoteClient) roundTrip(ctx context.Context, url string, body []byte) (types.ScoringResult, *attemptError) {
	actx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(actx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return types.ScoringResult{}, &attemptError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if rid := reqctx.ID(ctx); rid != "" {
		req.Header.Set(reqctx.HeaderRequestID, rid)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(actx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("no answer within %s: %w", c.cfg.AttemptTimeout, err)
		}
		return types.ScoringResult{}, &attemptError{err: err}
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteResponseBytes))
	if err != nil {
		return types.ScoringResult{}, &attemptError{status: resp.StatusCode, body: excerpt(b, maxRemoteBodyExcerpt), err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return types.ScoringResult{}, &attemptError{status: resp.StatusCode, body: excerpt(b, maxRemoteBodyExcerpt), err: fmt.Errorf("non-success status from ML service: %s", resp.Status)}
	}
	// Any JSON body on a 2xx is the answer and is passed through as sent.
	res, err := types.DecodeScoringResult(b)
	if err != nil {
		return types.ScoringResult{}, &attemptError{status: resp.StatusCode, body: excerpt(b, maxRemoteBodyExcerpt), err: fmt.Errorf("unparseable ML service response: %w", err)}
	}
	if !res.Usable() {
		zerolog.Ctx(ctx).Warn().Str("body", excerpt(b, maxRemoteBodyExcerpt)).Msg("ML service answered without a prediction")
	}
	return res, nil
}

// ProbeError reports a failed readiness probe. Status is zero when the
// remote scorer could not be reached.
type ProbeError struct {
	Status int
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("ML service not ready: status %d", e.Status)
	}
	return "ML service unreachable: " + e.Err.Error()
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Probe asks {endpoint}/readyz whether the remote scorer is ready, bounded
// by ReadyTimeout.
func (c *RemoteClient) Probe(ctx context.Context) error {
	pctx, cancel := context.WithTimeout(ctx, c.cfg.ReadyTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(pctx, http.MethodGet, c.endpoint+"/readyz", nil)
	if err != nil {
		return &ProbeError{Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProbeError{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxRemoteBodyExcerpt))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProbeError{Status: resp.StatusCode, Err: errors.New(resp.Status)}
	}
	return nil
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
