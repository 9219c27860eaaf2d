//go:build linux
// +build linux

package l2cap

import (
	"testing"

	"golang.org/x/sys/unix"
)

// fakeSecOpts stands in for the BT_SECURITY socket options, which plain
// AF_UNIX test sockets cannot carry.
type fakeSecOpts struct {
	level   uint8
	gets    int
	sets    int
	failGet bool
	failSet bool
}

func (f *fakeSecOpts) getSecurity(fd int) (uint8, error) {
	f.gets++
	if f.failGet {
		return 0, unix.ENOPROTOOPT
	}
	return f.level, nil
}

func (f *fakeSecOpts) setSecurity(fd int, level uint8) error {
	f.sets++
	if f.failSet {
		return unix.EINVAL
	}
	f.level = level
	return nil
}

func TestSetSecurityLevelIdempotent(t *testing.T) {
	a, _ := testClientPair(t)
	fake := &fakeSecOpts{level: uint8(SecLevelNone)}
	a.opts = fake

	if !a.SetSecurityLevel(SecLevelEncOnly) {
		t.Fatal("first set failed")
	}
	if fake.sets != 1 {
		t.Fatalf("set-option calls %v, want 1", fake.sets)
	}

	// Same level again: read-compare short-circuits the set.
	if !a.SetSecurityLevel(SecLevelEncOnly) {
		t.Fatal("redundant set reported failure")
	}
	if fake.sets != 1 {
		t.Fatalf("set-option calls %v after redundant set, want 1", fake.sets)
	}

	if got := a.GetSecurityLevel(); got != SecLevelEncOnly {
		t.Fatalf("level %v, want %v", got, SecLevelEncOnly)
	}
}

func TestSetSecurityLevelBelowMinimum(t *testing.T) {
	a, _ := testClientPair(t)
	fake := &fakeSecOpts{level: uint8(SecLevelNone)}
	a.opts = fake

	if a.SetSecurityLevel(SecLevelUnset) {
		t.Fatal("level below minimum accepted")
	}
	if fake.sets != 0 {
		t.Fatalf("set-option calls %v, want 0", fake.sets)
	}
}

func TestSetSecurityLevelFailureLeavesState(t *testing.T) {
	a, _ := testClientPair(t)
	fake := &fakeSecOpts{level: uint8(SecLevelNone), failSet: true}
	a.opts = fake

	if a.SetSecurityLevel(SecLevelEncAuth) {
		t.Fatal("failed set reported success")
	}
	fake.failSet = false
	if got := a.GetSecurityLevel(); got != SecLevelNone {
		t.Fatalf("level changed to %v on failed set", got)
	}
}

func TestGetSecurityLevelUnsupported(t *testing.T) {
	a, _ := testClientPair(t)
	a.opts = &fakeSecOpts{failGet: true}

	if got := a.GetSecurityLevel(); got != SecLevelUnset {
		t.Fatalf("level %v on unsupported platform, want unset", got)
	}

	a.Close()
	if got := a.GetSecurityLevel(); got != SecLevelUnset {
		t.Fatalf("level %v on closed channel, want unset", got)
	}
}
