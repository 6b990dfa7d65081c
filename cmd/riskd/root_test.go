package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"riskd/internal/config"
	"riskd/internal/scorer"
	"riskd/pkg/types"
)

// clearEnv unsets the variables riskd reads so the host environment cannot
// leak into a test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"HOST", "PORT", "ML_URL", "FETCH_TIMEOUT_MS", "READY_TIMEOUT_MS", "ML_RETRIES",
		"ML_BACKOFF_MS", "PYTHON_CMD", "PYTHON_SCRIPT", "PYTHON_TIMEOUT_MS", "FRONTEND_URL", "BODY_LIMIT",
		"LOG_LEVEL", "LOG_FORMAT", "LOCAL_MAX_CONCURRENT", "LOCAL_MAX_QUEUE", "LOCAL_MAX_WAIT_MS",
		"SHUTDOWN_TIMEOUT_MS", "SERVICE_NAME", "ML_BREAKER"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func runConfigCmd(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append([]string{"config"}, args...))
	if err := cmd.Execute(); err != nil {
		return config.Config{}, err
	}
	cfg := config.Default()
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &cfg))
	return cfg, nil
}

func TestConfigPrecedence(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "riskd.yaml")
	require.NoError(t, os.WriteFile(file, []byte("ml_url: http://file:1\nml_retries: 7\nlog_level: warn\naddr: :6000\n"), 0o644))
	t.Setenv("ML_URL", "http://env:2")
	t.Setenv("LOG_LEVEL", "error")

	cfg, err := runConfigCmd(t, "--config", file, "--log-level", "debug")
	require.NoError(t, err)
	assert.Equal(t, "http://env:2", cfg.MLURL, "env beats file")
	assert.Equal(t, 7, cfg.MLRetries, "file beats default")
	assert.Equal(t, "debug", cfg.LogLevel, "flag beats env")
	assert.Equal(t, ":6000", cfg.Addr)
}

func TestConfigEnvFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PYTHON_TIMEOUT_MS=4321\nBODY_LIMIT=1mb\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("PYTHON_TIMEOUT_MS")
		os.Unsetenv("BODY_LIMIT")
	})

	cfg, err := runConfigCmd(t, "--env-file", envFile, "--addr", "127.0.0.1:0")
	require.NoError(t, err)
	assert.Equal(t, 4321, cfg.PythonTimeoutMS)
	assert.Equal(t, "1mb", cfg.BodyLimit)
	assert.Equal(t, "127.0.0.1:0", cfg.Addr)
}

func TestConfigInvalid(t *testing.T) {
	clearEnv(t)
	t.Setenv("ML_RETRIES", "-3")
	_, err := runConfigCmd(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ml_retries")

	_, err = runConfigCmd(t, "--config", "/no/such/riskd.yaml")
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"
	var buf bytes.Buffer
	logger, err := newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"service":"heart-risk-backend"`)

	cfg.LogFormat = "console"
	buf.Reset()
	logger, err = newLogger(cfg, &buf)
	require.NoError(t, err)
	logger.Warn().Msg("pretty")
	assert.False(t, strings.HasPrefix(buf.String(), "{"), "console output is not JSON")

	cfg.LogLevel = "loud"
	_, err = newLogger(cfg, &buf)
	assert.Error(t, err)
}

func TestBuildScorerPicksModeOnce(t *testing.T) {
	cfg := config.Default()
	s, err := buildScorer(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, scorer.ModeLocal, s.Mode())
	_, gated := s.(*scorer.Gate)
	assert.True(t, gated, "local scorer runs behind the admission gate")

	cfg.MLURL = "http://ml:8000"
	s, err = buildScorer(cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, scorer.ModeRemote, s.Mode())
}

func TestBuildScorerLogsProcessEvents(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}
	script := filepath.Join(t.TempDir(), "predict.sh")
	require.NoError(t, os.WriteFile(script, []byte("cat >/dev/null\nprintf '{\"prediction\":0}'\n"), 0o644))
	cfg := config.Default()
	cfg.PythonCmd = "sh"
	cfg.PythonScript = script

	var buf bytes.Buffer
	s, err := buildScorer(cfg, zerolog.New(&buf).Level(zerolog.DebugLevel))
	require.NoError(t, err)
	_, err = s.Score(context.Background(), types.NewInput(map[string]any{"age": 40}))
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `"event":"spawn_start"`)
	assert.Contains(t, buf.String(), `"event":"spawn_exit"`)
}

func TestScoreCommandValidationError(t *testing.T) {
	clearEnv(t)
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(`{}`))
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs([]string{"score"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.True(t, scorer.IsKind(err, scorer.KindValidation))
}
