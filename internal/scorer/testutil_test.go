package scorer

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return c
}

// loggedCtx attaches a logger writing into buf.
func loggedCtx(t *testing.T, w *syncBuffer) context.Context {
	t.Helper()
	l := zerolog.New(w).Level(zerolog.DebugLevel)
	return l.WithContext(testCtx(t))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

var (
	fakeScorerOnce sync.Once
	fakeScorerPath string
	fakeScorerErr  error
	fakeScorerOut  []byte
)

// buildFakeScorer builds testdata/fake_scorer.go once per test binary and
// returns its path.
func buildFakeScorer(t *testing.T) string {
	t.Helper()
	fakeScorerOnce.Do(func() {
		dir, err := os.MkdirTemp("", "fake-scorer-")
		if err != nil {
			fakeScorerErr = err
			return
		}
		fakeScorerPath = filepath.Join(dir, "fake_scorer")
		cmd := exec.Command("go", "build", "-o", fakeScorerPath, "./testdata/fake_scorer.go")
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		fakeScorerOut, fakeScorerErr = cmd.CombinedOutput()
	})
	if fakeScorerErr != nil {
		t.Fatalf("build fake scorer: %v: %s", fakeScorerErr, fakeScorerOut)
	}
	return fakeScorerPath
}

// fakeRunner returns a LocalRunner running the fake scorer in mode.
func fakeRunner(t *testing.T, mode string, timeout time.Duration) (*LocalRunner, *MemoryPublisher) {
	t.Helper()
	bin := buildFakeScorer(t)
	r := NewLocalRunner(LocalConfig{
		Command: []string{bin},
		Env:     []string{"FAKE_SCORER_MODE=" + mode},
		Timeout: timeout,
	})
	pub := NewMemoryPublisher()
	r.SetPublisher(pub)
	return r, pub
}
