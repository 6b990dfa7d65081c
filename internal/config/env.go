package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ApplyEnv overlays environment variables on c. lookup is usually
// os.LookupEnv. Empty values are ignored.
//
// HOST and PORT replace the corresponding half of addr.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		v = strings.TrimSpace(v)
		return v, ok && v != ""
	}

	host, port, err := net.SplitHostPort(c.Addr)
	if err != nil {
		host, port = "", strings.TrimPrefix(c.Addr, ":")
	}
	hostSet, portSet := false, false
	if v, ok := get("HOST"); ok {
		host, hostSet = v, true
	}
	if v, ok := get("PORT"); ok {
		if _, err := strconv.ParseUint(v, 10, 16); err != nil {
			return fmt.Errorf("PORT: invalid port %q", v)
		}
		port, portSet = v, true
	}
	if hostSet || portSet {
		c.Addr = net.JoinHostPort(host, port)
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"ML_URL", &c.MLURL},
		{"PYTHON_CMD", &c.PythonCmd},
		{"PYTHON_SCRIPT", &c.PythonScript},
		{"FRONTEND_URL", &c.FrontendURL},
		{"BODY_LIMIT", &c.BodyLimit},
		{"LOG_LEVEL", &c.LogLevel},
		{"LOG_FORMAT", &c.LogFormat},
		{"SERVICE_NAME", &c.ServiceName},
	}
	for _, s := range strs {
		if v, ok := get(s.key); ok {
			*s.dst = v
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"FETCH_TIMEOUT_MS", &c.FetchTimeoutMS},
		{"READY_TIMEOUT_MS", &c.ReadyTimeoutMS},
		{"ML_RETRIES", &c.MLRetries},
		{"ML_BACKOFF_MS", &c.MLBackoffMS},
		{"PYTHON_TIMEOUT_MS", &c.PythonTimeoutMS},
		{"LOCAL_MAX_CONCURRENT", &c.LocalMaxConcurrent},
		{"LOCAL_MAX_QUEUE", &c.LocalMaxQueue},
		{"LOCAL_MAX_WAIT_MS", &c.LocalMaxWaitMS},
		{"SHUTDOWN_TIMEOUT_MS", &c.ShutdownTimeoutMS},
	}
	for _, i := range ints {
		v, ok := get(i.key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: not an integer: %q", i.key, v)
		}
		*i.dst = n
	}

	if v, ok := get("ML_BREAKER"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ML_BREAKER: not a boolean: %q", v)
		}
		c.BreakerEnabled = b
	}
	return nil
}

// ParseByteSize parses sizes such as "200kb", "1.5MB" or "4096". Unit
// prefixes without an "i" are 1024-based, matching the usual meaning of a
// body limit; a bare number is a byte count.
func ParseByteSize(s string) (uint64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	for _, unit := range []string{"kb", "mb", "gb", "tb"} {
		if strings.HasSuffix(s, unit) {
			s = strings.TrimSuffix(s, unit) + unit[:1] + "ib"
			break
		}
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n == 0 {
		return 0, fmt.Errorf("size must be positive")
	}
	return n, nil
}
