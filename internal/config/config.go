// Package config holds the immutable runtime configuration of riskd. Values
// come from Default(), then an optional file (Load), then the environment
// (ApplyEnv); command-line flags are applied last by the caller.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"riskd/internal/common/fsutil"
	"riskd/internal/scorer"
)

// Config holds runtime parameters for the service. Durations are expressed
// in milliseconds to match the environment variables.
type Config struct {
	Addr              string `json:"addr" yaml:"addr" toml:"addr"`
	ServiceName       string `json:"service_name" yaml:"service_name" toml:"service_name"`
	FrontendURL       string `json:"frontend_url" yaml:"frontend_url" toml:"frontend_url"`
	BodyLimit         string `json:"body_limit" yaml:"body_limit" toml:"body_limit"`
	LogLevel          string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat         string `json:"log_format" yaml:"log_format" toml:"log_format"`
	ShutdownTimeoutMS int    `json:"shutdown_timeout_ms" yaml:"shutdown_timeout_ms" toml:"shutdown_timeout_ms"`

	// Remote scoring. A non-empty MLURL selects remote mode.
	MLURL            string `json:"ml_url" yaml:"ml_url" toml:"ml_url"`
	FetchTimeoutMS   int    `json:"fetch_timeout_ms" yaml:"fetch_timeout_ms" toml:"fetch_timeout_ms"`
	ReadyTimeoutMS   int    `json:"ready_timeout_ms" yaml:"ready_timeout_ms" toml:"ready_timeout_ms"`
	MLRetries        int    `json:"ml_retries" yaml:"ml_retries" toml:"ml_retries"`
	MLBackoffMS      int    `json:"ml_backoff_ms" yaml:"ml_backoff_ms" toml:"ml_backoff_ms"`
	BreakerEnabled   bool   `json:"breaker_enabled" yaml:"breaker_enabled" toml:"breaker_enabled"`
	BreakerThreshold int    `json:"breaker_threshold" yaml:"breaker_threshold" toml:"breaker_threshold"`
	BreakerDelayMS   int    `json:"breaker_delay_ms" yaml:"breaker_delay_ms" toml:"breaker_delay_ms"`

	// Local scoring.
	PythonCmd          string `json:"python_cmd" yaml:"python_cmd" toml:"python_cmd"`
	PythonScript       string `json:"python_script" yaml:"python_script" toml:"python_script"`
	PythonTimeoutMS    int    `json:"python_timeout_ms" yaml:"python_timeout_ms" toml:"python_timeout_ms"`
	StderrLimit        int    `json:"stderr_limit" yaml:"stderr_limit" toml:"stderr_limit"`
	LocalMaxConcurrent int    `json:"local_max_concurrent" yaml:"local_max_concurrent" toml:"local_max_concurrent"`
	LocalMaxQueue      int    `json:"local_max_queue" yaml:"local_max_queue" toml:"local_max_queue"`
	LocalMaxWaitMS     int    `json:"local_max_wait_ms" yaml:"local_max_wait_ms" toml:"local_max_wait_ms"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:              ":5000",
		ServiceName:       "heart-risk-backend",
		BodyLimit:         "200kb",
		LogLevel:          "info",
		LogFormat:         "json",
		ShutdownTimeoutMS: 10000,

		FetchTimeoutMS:   8000,
		ReadyTimeoutMS:   1200,
		MLRetries:        2,
		MLBackoffMS:      500,
		BreakerThreshold: 5,
		BreakerDelayMS:   10000,

		PythonCmd:       "python3",
		PythonScript:    "ml/predict.py",
		PythonTimeoutMS: 10000,
		StderrLimit:     2000,
		LocalMaxQueue:   32,
		LocalMaxWaitMS:  30000,
	}
}

// Mode reports the scoring path selected by the configuration.
func (c Config) Mode() scorer.Mode {
	if strings.TrimSpace(c.MLURL) != "" {
		return scorer.ModeRemote
	}
	return scorer.ModeLocal
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("addr must not be empty"))
	}
	if _, err := ParseByteSize(c.BodyLimit); err != nil {
		errs = append(errs, fmt.Errorf("body_limit: %w", err))
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel)); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log_format: want json or console, got %q", c.LogFormat))
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"shutdown_timeout_ms", c.ShutdownTimeoutMS},
		{"fetch_timeout_ms", c.FetchTimeoutMS},
		{"ready_timeout_ms", c.ReadyTimeoutMS},
		{"python_timeout_ms", c.PythonTimeoutMS},
		{"local_max_wait_ms", c.LocalMaxWaitMS},
	} {
		if f.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", f.name, f.v))
		}
	}
	if c.MLRetries < 0 {
		errs = append(errs, fmt.Errorf("ml_retries must not be negative, got %d", c.MLRetries))
	}
	if c.MLBackoffMS < 0 {
		errs = append(errs, fmt.Errorf("ml_backoff_ms must not be negative, got %d", c.MLBackoffMS))
	}
	if c.LocalMaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("local_max_concurrent must not be negative, got %d", c.LocalMaxConcurrent))
	}
	if c.Mode() == scorer.ModeRemote {
		u, err := url.Parse(strings.TrimSpace(c.MLURL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("ml_url: want an absolute http(s) URL, got %q", c.MLURL))
		}
	} else if len(strings.Fields(c.PythonCmd)) == 0 {
		errs = append(errs, errors.New("python_cmd must not be empty in local mode"))
	}
	return errors.Join(errs...)
}

// BodyLimitBytes returns the parsed request body limit.
func (c Config) BodyLimitBytes() int64 {
	n, err := ParseByteSize(c.BodyLimit)
	if err != nil {
		n, _ = ParseByteSize(Default().BodyLimit)
	}
	return int64(n)
}

func (c Config) ShutdownTimeout() time.Duration { return ms(c.ShutdownTimeoutMS) }

// RemoteConfig derives the remote scorer settings.
func (c Config) RemoteConfig() scorer.RemoteConfig {
	threshold := c.BreakerThreshold
	if threshold < 0 {
		threshold = 0
	}
	return scorer.RemoteConfig{
		Endpoint:       strings.TrimSpace(c.MLURL),
		AttemptTimeout: ms(c.FetchTimeoutMS),
		Retries:        c.MLRetries,
		BackoffBase:    ms(c.MLBackoffMS),
		ReadyTimeout:   ms(c.ReadyTimeoutMS),
		Breaker: scorer.BreakerConfig{
			Enabled:          c.BreakerEnabled,
			FailureThreshold: uint(threshold),
			Delay:            ms(c.BreakerDelayMS),
		},
	}
}

// LocalConfig derives the local scorer settings. python_cmd may carry extra
// arguments; the script path is appended last after expanding a leading ~.
func (c Config) LocalConfig() (scorer.LocalConfig, error) {
	cmd := strings.Fields(c.PythonCmd)
	if len(cmd) == 0 {
		return scorer.LocalConfig{}, errors.New("python_cmd must not be empty")
	}
	if c.PythonScript != "" {
		script, err := fsutil.ExpandHome(c.PythonScript)
		if err != nil {
			return scorer.LocalConfig{}, fmt.Errorf("python_script: %w", err)
		}
		cmd = append(cmd, script)
	}
	return scorer.LocalConfig{
		Command:     cmd,
		Timeout:     ms(c.PythonTimeoutMS),
		StderrLimit: c.StderrLimit,
	}, nil
}

// GateConfig derives the admission limits for the local scorer.
func (c Config) GateConfig() scorer.GateConfig {
	return scorer.GateConfig{
		MaxConcurrent: c.LocalMaxConcurrent,
		MaxQueue:      c.LocalMaxQueue,
		MaxWait:       ms(c.LocalMaxWaitMS),
	}
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
