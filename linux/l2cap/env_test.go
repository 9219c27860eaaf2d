//go:build linux
// +build linux

package l2cap

import (
	"testing"
	"time"
)

func TestEnvironmentSnapshot(t *testing.T) {
	// TestMain pinned the variables before first use.
	env := Environment()

	if env.PollTimeout != 25*time.Millisecond {
		t.Fatalf("poll timeout %v, want 25ms", env.PollTimeout)
	}
	if env.ConnectRetries != 2 {
		t.Fatalf("connect retries %v, want 2", env.ConnectRetries)
	}
	if env.IOErrRetries != 0 {
		t.Fatalf("ioerr retries %v, want 0", env.IOErrRetries)
	}

	// The snapshot is latched; a second call yields the same instance.
	if Environment() != env {
		t.Fatal("environment re-read after first use")
	}
}

func TestClampDuration(t *testing.T) {
	cases := []struct {
		in, want time.Duration
	}{
		{time.Millisecond, minPollTimeout},
		{minPollTimeout, minPollTimeout},
		{time.Second, time.Second},
		{maxPollTimeout, maxPollTimeout},
		{10 * time.Minute, maxPollTimeout},
	}
	for _, c := range cases {
		if got := clampDuration(c.in, minPollTimeout, maxPollTimeout); got != c.want {
			t.Errorf("clamp(%v) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEnvIntIgnoresGarbage(t *testing.T) {
	t.Setenv("L2CHAN_TEST_GARBAGE", "not-a-number")
	if _, ok := envInt("L2CHAN_TEST_GARBAGE"); ok {
		t.Fatal("garbage accepted")
	}
	t.Setenv("L2CHAN_TEST_GARBAGE", "-7")
	n, ok := envInt("L2CHAN_TEST_GARBAGE")
	if !ok || n != -7 {
		t.Fatalf("envInt = (%v, %v), want (-7, true)", n, ok)
	}
}
