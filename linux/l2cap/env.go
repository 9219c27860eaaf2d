package l2cap

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/openbt/l2chan"
)

// Environment variables honored by the channel layer. Read once, at
// first channel use; later changes to the process environment are not
// observed.
const (
	envPollTimeout    = "L2CHAN_POLL_TIMEOUT_MS"
	envConnectRetries = "L2CHAN_CONNECT_RETRIES"
	envIOErrRetries   = "L2CHAN_IOERR_RETRIES"
	envDebug          = "L2CHAN_DEBUG"
)

const (
	defaultPollTimeout = 10 * time.Second
	minPollTimeout     = 10 * time.Millisecond
	maxPollTimeout     = 60 * time.Second

	defaultConnectRetries = 3
)

// Env is the process-wide channel configuration snapshot. All fields
// are read-only after Environment() returns for the first time and are
// therefore safe for concurrent use without synchronization.
type Env struct {
	// PollTimeout bounds how long a single read poll blocks before the
	// idle PollTimeout exit code is reported. Clamped to
	// [minPollTimeout, maxPollTimeout].
	PollTimeout time.Duration

	// ConnectRetries is how many times a timed-out connect or accept is
	// retried before the terminal timeout failure; the total attempt
	// count is ConnectRetries+1.
	ConnectRetries int

	// IOErrRetries gates the reaction to a non-timeout I/O error on an
	// open channel. Negative means no recovery is possible: abort the
	// process rather than continue with suspect state. Zero or positive
	// means the error is reported to the caller for externally driven
	// reconnection.
	IOErrRetries int

	// Debug enables verbose per-syscall logging.
	Debug bool
}

var (
	env     Env
	envOnce sync.Once
)

// Environment returns the lazily-initialized configuration snapshot
// shared by all channel instances.
func Environment() *Env {
	envOnce.Do(func() {
		env = Env{
			PollTimeout:    defaultPollTimeout,
			ConnectRetries: defaultConnectRetries,
			IOErrRetries:   0,
		}

		if ms, ok := envInt(envPollTimeout); ok {
			env.PollTimeout = clampDuration(time.Duration(ms)*time.Millisecond, minPollTimeout, maxPollTimeout)
		}
		if n, ok := envInt(envConnectRetries); ok && n >= 0 {
			env.ConnectRetries = n
		}
		if n, ok := envInt(envIOErrRetries); ok {
			env.IOErrRetries = n
		}
		if v := os.Getenv(envDebug); v == "1" || v == "true" {
			env.Debug = true
			l2chan.SetLogLevelMax()
		}

		l2chan.GetLogger().Debugf("l2cap env: poll %v, connect retries %v, ioerr retries %v",
			env.PollTimeout, env.ConnectRetries, env.IOErrRetries)
	})

	return &env
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		l2chan.GetLogger().Warnf("ignoring %v=%q: %v", key, v, err)
		return 0, false
	}
	return n, true
}

func clampDuration(d, lo, hi time.Duration) time.Duration {
	switch {
	case d < lo:
		return lo
	case d > hi:
		return hi
	default:
		return d
	}
}
