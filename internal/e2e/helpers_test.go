package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"

	"riskd/internal/config"
	"riskd/internal/dispatch"
	"riskd/internal/httpapi"
	"riskd/internal/scorer"
)

// newServer wires config -> scorer -> dispatcher -> HTTP exactly as the
// binary does and serves it from an httptest server.
func newServer(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}
	var s scorer.Scorer
	if cfg.Mode() == scorer.ModeRemote {
		s = scorer.NewRemoteClient(cfg.RemoteConfig())
	} else {
		lc, err := cfg.LocalConfig()
		if err != nil {
			t.Fatalf("local config: %v", err)
		}
		s = scorer.NewGate(scorer.NewLocalRunner(lc), cfg.GateConfig())
	}
	mux := httpapi.NewMux(dispatch.New(s), httpapi.Options{
		ServiceName:  cfg.ServiceName,
		FrontendURL:  cfg.FrontendURL,
		MaxBodyBytes: cfg.BodyLimitBytes(),
		Logger:       zerolog.New(io.Discard),
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// writeScript writes an executable shell scorer and returns its path.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scorers need a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "scorer.sh")
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write scorer: %v", err)
	}
	return p
}

// localConfig returns a local-mode config running script with sh.
func localConfig(script string) config.Config {
	cfg := config.Default()
	cfg.PythonCmd = "sh"
	cfg.PythonScript = script
	cfg.PythonTimeoutMS = 2000
	return cfg
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}
