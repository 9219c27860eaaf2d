//go:build linux
// +build linux

package l2cap

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"

	jsoniter "github.com/json-iterator/go"
	"github.com/openbt/l2chan"
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Blocking-operation markers, for diagnostics and close() targeting.
const (
	opNone int32 = iota
	opConnect
	opRead
	opAccept
)

func opName(op int32) string {
	switch op {
	case opConnect:
		return "connect"
	case opRead:
		return "read"
	case opAccept:
		return "accept"
	default:
		return "none"
	}
}

// core is the state shared by client and server channels: the bind
// triple, the descriptor, the open/interrupted/ioerror flags and the
// locking that makes open/close/write safe across goroutines. Client
// and Server embed it (composition, not inheritance); the mutex is
// never shared across instances.
type core struct {
	devID int
	local l2chan.AddrAndType
	psm   Psm
	cid   Cid

	// fd is -1 while closed. Swapped atomically so exactly one party
	// releases the descriptor.
	fd atomic.Int32

	opened      atomic.Bool
	interrupted atomic.Bool
	ioErr       atomic.Bool
	lastErrno   atomic.Int32
	blockedIn   atomic.Int32 // opNone/opConnect/opRead/opAccept

	// mu serializes open, close and write. Reads deliberately run
	// outside mu and coordinate with close through wake + interrupted.
	mu sync.Mutex

	// wake is allocated in init and never reassigned, so shutdown may
	// read it without holding mu. Nil only when eventfd creation
	// failed; wakeErr carries that failure to the next open.
	wake    *waker
	wakeErr error

	opts secOpts

	l2chan.Logger
}

func (c *core) init(psm Psm, cid Cid, kind string, l l2chan.Logger) {
	c.psm = psm
	c.cid = cid
	c.fd.Store(-1)
	c.opts = btSecOpts{}
	c.wake, c.wakeErr = newWaker()
	if l == nil {
		l = l2chan.GetLogger()
	}
	c.Logger = l.ChildLogger(map[string]interface{}{
		"chan": kind,
		"psm":  psm.String(),
		"cid":  cid.String(),
	})
}

// openSocket creates a connection-oriented L2CAP socket and binds it to
// the local address/psm/cid triple.
func openSocket(local l2chan.AddrAndType, psm Psm, cid Cid) (int, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, unix.BTPROTO_L2CAP)
	if err != nil {
		return -1, errors.Wrap(err, "can't create l2cap socket")
	}

	if err := unix.Bind(fd, sockaddrL2(local, psm, cid)); err != nil {
		unix.Close(fd)
		return -1, errors.Wrapf(err, "can't bind l2cap socket to %v psm %v cid %v", local, psm, cid)
	}

	return fd, nil
}

// armWaker resets the cancellation token so the session starts
// unsignaled. Callers hold mu.
func (c *core) armWaker() error {
	if c.wake == nil {
		return c.wakeErr
	}
	c.wake.drain()
	return nil
}

// releaseFD closes the descriptor exactly once per session.
func (c *core) releaseFD() {
	if fd := c.fd.Swap(-1); fd >= 0 {
		unix.Close(int(fd))
	}
}

// shutdown is the shared half of close(): compare-and-swap the open
// flag, signal the blocked owner, then tear the descriptor down under
// mu. Idempotent; safe from any goroutine.
func (c *core) shutdown() error {
	if !c.opened.CompareAndSwap(true, false) {
		return nil // already closed, success-as-no-op
	}

	c.interrupted.Store(true)
	if c.wake != nil {
		c.wake.signal()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.releaseFD()

	c.Debugf("closed (was blocked in %v)", opName(c.blockedIn.Load()))
	return nil
}

func (c *core) setErrno(e syscall.Errno) {
	c.lastErrno.Store(int32(e))
}

// ioError records an I/O error and applies the configured recovery
// policy. Timeouts are benign and never trip the flag or the policy; a
// negative retry budget on a genuine error means no recovery is
// possible and the process aborts rather than continuing with suspect
// state.
func (c *core) ioError(op string, code ExitCode, e syscall.Errno) error {
	if e != unix.ETIMEDOUT {
		c.ioErr.Store(true)
		if Environment().IOErrRetries < 0 {
			c.Fatalf("unrecoverable l2cap %s error, aborting: %v", op, c.String())
		}
	}
	c.setErrno(e)

	return exitErr(op, code, e)
}

// IsOpen reports whether the channel currently owns a descriptor.
func (c *core) IsOpen() bool {
	return c.opened.Load()
}

// HasIOError reports whether a non-timeout I/O error occurred this
// session.
func (c *core) HasIOError() bool {
	return c.ioErr.Load()
}

// LocalAddr returns the bound local address and type.
func (c *core) LocalAddr() l2chan.AddrAndType {
	return c.local
}

// Psm returns the channel's protocol/service multiplexer.
func (c *core) Psm() Psm { return c.psm }

// Cid returns the channel's identifier.
func (c *core) Cid() Cid { return c.cid }

// GetSecurityLevel reads the channel's current security level, or
// SecLevelUnset if the platform or the descriptor can't report one.
func (c *core) GetSecurityLevel() SecurityLevel {
	fd := c.fd.Load()
	if fd < 0 {
		return SecLevelUnset
	}

	lvl, err := c.opts.getSecurity(int(fd))
	if err != nil {
		c.Debugf("can't read BT_SECURITY: %v", err)
		return SecLevelUnset
	}
	return SecurityLevel(lvl)
}

// SetSecurityLevel raises (or lowers) the channel's security level.
// Levels below SecLevelNone are rejected. The set-option call is issued
// only when the level actually differs from the current one; a
// redundant renegotiation can deadlock the peer's pairing state
// machine. Returns false, with state unchanged, when the call fails.
//
// Must only be called after the connect handshake has completed; see
// Client.Open.
func (c *core) SetSecurityLevel(lvl SecurityLevel) bool {
	if lvl < SecLevelNone {
		c.Warnf("refusing security level %v, minimum is %v", lvl, SecLevelNone)
		return false
	}

	fd := c.fd.Load()
	if fd < 0 {
		return false
	}

	if cur := c.GetSecurityLevel(); cur == lvl {
		c.Debugf("security level already %v", lvl)
		return true
	}

	if err := c.opts.setSecurity(int(fd), uint8(lvl)); err != nil {
		if e, ok := err.(syscall.Errno); ok {
			c.setErrno(e)
		}
		c.Errorf("can't set security level %v: %v", lvl, err)
		return false
	}

	c.Debugf("security level set to %v", lvl)
	return true
}

// channelState is the diagnostic snapshot behind String and StateJSON.
type channelState struct {
	Device      int    `json:"device"`
	Local       string `json:"local"`
	Psm         string `json:"psm"`
	Cid         string `json:"cid"`
	Open        bool   `json:"open"`
	Interrupted bool   `json:"interrupted"`
	IOError     bool   `json:"ioError"`
	BlockedIn   string `json:"blockedIn,omitempty"`
	Errno       int    `json:"errno,omitempty"`
	ErrnoText   string `json:"errnoText,omitempty"`
}

func (c *core) state() channelState {
	s := channelState{
		Device:      c.devID,
		Local:       c.local.String(),
		Psm:         c.psm.String(),
		Cid:         c.cid.String(),
		Open:        c.opened.Load(),
		Interrupted: c.interrupted.Load(),
		IOError:     c.ioErr.Load(),
	}
	if op := c.blockedIn.Load(); op != opNone {
		s.BlockedIn = opName(op)
	}
	if e := syscall.Errno(c.lastErrno.Load()); e != 0 {
		s.Errno = int(e)
		s.ErrnoText = e.Error()
	}
	return s
}

// String formats the channel state for diagnostics. Side-effect free.
func (c *core) String() string {
	s := c.state()
	out := fmt.Sprintf("hci%d %s psm %s cid %s open %v", s.Device, s.Local, s.Psm, s.Cid, s.Open)
	if s.Interrupted {
		out += ", interrupted"
	}
	if s.IOError {
		out += ", ioerror"
	}
	if s.BlockedIn != "" {
		out += ", blocked in " + s.BlockedIn
	}
	if s.Errno != 0 {
		out += fmt.Sprintf(", last errno %d (%s)", s.Errno, s.ErrnoText)
	}
	return out
}

// StateJSON renders the same snapshot as JSON for structured logs.
func (c *core) StateJSON() string {
	out, err := jsoniter.MarshalToString(c.state())
	if err != nil {
		return fmt.Sprintf("{%q:%q}", "error", err.Error())
	}
	return out
}
