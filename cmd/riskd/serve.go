package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"riskd/internal/common/fsutil"
	"riskd/internal/config"
	"riskd/internal/dispatch"
	"riskd/internal/httpapi"
	"riskd/internal/scorer"
)

// newLogger builds the root logger and installs it as the zerolog/log
// global for packages without a request context.
func newLogger(cfg config.Config, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		return zerolog.Nop(), err
	}
	out := w
	if cfg.LogFormat == "console" {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	logger := zerolog.New(out).Level(lvl).With().Timestamp().Str("service", cfg.ServiceName).Logger()
	log.Logger = logger
	return logger, nil
}

// buildScorer picks the scoring path once, from the configuration.
func buildScorer(cfg config.Config, logger zerolog.Logger) (scorer.Scorer, error) {
	if cfg.Mode() == scorer.ModeRemote {
		rc := cfg.RemoteConfig()
		logger.Info().Str("ml_url", rc.Endpoint).Int("retries", rc.Retries).Bool("breaker", rc.Breaker.Enabled).
			Msg("scoring through remote service")
		return scorer.NewRemoteClient(rc), nil
	}
	lc, err := cfg.LocalConfig()
	if err != nil {
		return nil, err
	}
	if script := lc.Command[len(lc.Command)-1]; cfg.PythonScript != "" && !fsutil.FileExists(script) {
		logger.Warn().Str("script", script).Msg("local scorer script not found; predictions will fail until it exists")
	}
	gc := cfg.GateConfig()
	logger.Info().Strs("command", lc.Command).Dur("timeout", lc.Timeout).Int("max_concurrent", gc.MaxConcurrent).
		Msg("ML_URL not set, scoring with local process")
	runner := scorer.NewLocalRunner(lc)
	runner.SetPublisher(scorer.NewLogPublisher(logger))
	return scorer.NewGate(runner, gc), nil
}

// newHandler wires the dispatcher into the HTTP layer.
func newHandler(cfg config.Config, logger zerolog.Logger) (http.Handler, *dispatch.Dispatcher, error) {
	s, err := buildScorer(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	d := dispatch.New(s)
	h := httpapi.NewMux(d, httpapi.Options{
		ServiceName:  cfg.ServiceName,
		FrontendURL:  cfg.FrontendURL,
		MaxBodyBytes: cfg.BodyLimitBytes(),
		Logger:       logger,
	})
	return h, d, nil
}

// serve runs the HTTP server until SIGINT/SIGTERM, then drains in-flight
// requests for at most shutdown_timeout_ms.
func serve(ctx context.Context, cfg config.Config) error {
	logger, err := newLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	h, d, err := newHandler(cfg, logger)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr, err)
	}
	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", ln.Addr().String()).Str("mode", string(d.Mode())).Msg("riskd listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info().Dur("timeout", cfg.ShutdownTimeout()).Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown error")
		return err
	}
	logger.Info().Msg("stopped")
	return nil
}
