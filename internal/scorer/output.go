package scorer

import (
	"bytes"
	"sync"

	"github.com/rs/zerolog"
)

// limitedBuffer keeps the first limit bytes written to it and discards the
// rest, so a chatty child process cannot grow memory without bound.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
	total int64
}

func newLimitedBuffer(limit int) *limitedBuffer { return &limitedBuffer{limit: limit} }

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total += int64(len(p))
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}

// Truncated reports whether anything was discarded.
func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total > int64(b.buf.Len())
}

// maxLoggedLine bounds a single logged stderr line.
const maxLoggedLine = 4096

// lineLogger logs complete stderr lines of a scorer process at debug level.
type lineLogger struct {
	log *zerolog.Logger
	pid int
	buf []byte
}

func (lw *lineLogger) Write(p []byte) (int, error) {
	lw.buf = append(lw.buf, p...)
	for {
		idx := bytes.IndexByte(lw.buf, '\n')
		if idx < 0 {
			break
		}
		lw.emit(lw.buf[:idx])
		lw.buf = lw.buf[idx+1:]
	}
	if len(lw.buf) > maxLoggedLine {
		lw.emit(lw.buf)
		lw.buf = lw.buf[:0]
	}
	return len(p), nil
}

// Flush logs a trailing partial line.
func (lw *lineLogger) Flush() {
	if len(lw.buf) > 0 {
		lw.emit(lw.buf)
		lw.buf = lw.buf[:0]
	}
}

func (lw *lineLogger) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 || lw.log == nil {
		return
	}
	lw.log.Debug().Int("pid", lw.pid).Str("stream", "stderr").Msg(excerpt(line, maxLoggedLine))
}
