//go:build linux
// +build linux

package l2cap

import (
	"syscall"
	"time"

	"github.com/openbt/l2chan"
	"golang.org/x/sys/unix"
)

var _ l2chan.Channel = (*Client)(nil)

// Client is a connected (or connecting) L2CAP endpoint. One goroutine
// typically loops in Read, another may Write, and a third may Close at
// any time; see the locking notes on core.
type Client struct {
	core

	remote l2chan.AddrAndType

	// dial is unix.Connect, replaced in tests the same way secOpts
	// stands in for the BT_SECURITY calls.
	dial func(fd int, sa unix.Sockaddr) error
}

// NewClient returns a closed client channel for the given psm/cid pair.
func NewClient(psm Psm, cid Cid, l l2chan.Logger) *Client {
	c := &Client{dial: unix.Connect}
	c.init(psm, cid, "client", l)
	return c
}

// newAcceptedClient wraps a descriptor handed over by Server.Accept.
// The descriptor is already connected; ownership transfers wholesale.
func newAcceptedClient(fd int, devID int, local, remote l2chan.AddrAndType, psm Psm, cid Cid, l l2chan.Logger) (*Client, error) {
	c := NewClient(psm, cid, l)
	c.devID = devID
	c.local = local
	c.remote = remote

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.armWaker(); err != nil {
		unix.Close(fd)
		return nil, err
	}
	c.fd.Store(int32(fd))
	c.opened.Store(true)
	return c, nil
}

// RemoteAddr returns the peer's address and type.
func (c *Client) RemoteAddr() l2chan.AddrAndType {
	return c.remote
}

// Open drives the connect handshake against the remote peer. The open
// flag is claimed up front so concurrent opens see ExitAlreadyOpen; any
// failure releases the socket and restores the closed state with the
// originating errno preserved. The security level is applied strictly
// after the handshake completes: setting it pre-connect deadlocks the
// peer's secure-pairing negotiation inside the kernel/controller.
func (c *Client) Open(dev l2chan.Device, remote l2chan.AddrAndType, sec SecurityLevel) error {
	if !c.opened.CompareAndSwap(false, true) {
		return exitErr("open", ExitAlreadyOpen, 0)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// A close() may have raced in between the flag claim and the lock.
	if !c.opened.Load() {
		return exitErr("open", ExitInterrupted, unix.EINTR)
	}

	c.interrupted.Store(false)
	c.ioErr.Store(false)
	c.lastErrno.Store(0)
	if err := c.armWaker(); err != nil {
		c.opened.Store(false)
		return err
	}

	c.devID = dev.ID()
	c.local = dev.Address()
	c.remote = remote

	fd, err := openSocket(c.local, c.psm, c.cid)
	if err != nil {
		c.opened.Store(false)
		return err
	}
	c.fd.Store(int32(fd))

	c.blockedIn.Store(opConnect)
	err = c.connect(fd, remote)
	c.blockedIn.Store(opNone)
	if err != nil {
		c.releaseFD()
		c.opened.Store(false)
		return err
	}

	if sec > SecLevelUnset && !c.SetSecurityLevel(sec) {
		e := syscall.Errno(c.lastErrno.Load())
		c.releaseFD()
		c.opened.Store(false)
		return exitErr("open", ExitSecurity, e)
	}

	if !c.opened.Load() || c.interrupted.Load() {
		c.releaseFD()
		c.opened.Store(false)
		return exitErr("open", ExitInterrupted, unix.EINTR)
	}

	c.Infof("connected to %v", remote)
	return nil
}

// connect loops the (non-blocking) connect until it completes, the
// retry budget for transient timeouts runs out, or close() cancels it.
// Callers hold mu.
func (c *Client) connect(fd int, remote l2chan.AddrAndType) error {
	env := Environment()
	sa := sockaddrL2(remote, c.psm, c.cid)

	// Non-blocking plus poll: the wakeup eventfd rides along in the
	// poll set so close() can force a bounded-time return.
	if err := unix.SetNonblock(fd, true); err != nil {
		return exitErr("connect", ExitConnFailed, errnoOf(err))
	}
	defer unix.SetNonblock(fd, false)

	timeouts := 0
	for {
		// Re-checked at every loop re-entry, not only at the top; a
		// wakeup can race a syscall re-entry.
		if c.interrupted.Load() {
			return exitErr("connect", ExitInterrupted, unix.EINTR)
		}

		err := c.dial(fd, sa)
		switch err {
		case nil, unix.EISCONN:
			return nil

		case unix.EINPROGRESS, unix.EALREADY, unix.EAGAIN, unix.EINTR:
			done, cerr := c.awaitConnected(fd, env.PollTimeout)
			if cerr != nil {
				return cerr
			}
			if done {
				return nil
			}
			// poll timeout; fall through to the retry accounting

		case unix.ETIMEDOUT:
			// counted below

		default:
			c.setErrno(errnoOf(err))
			return exitErr("connect", ExitConnFailed, errnoOf(err))
		}

		timeouts++
		if timeouts > env.ConnectRetries {
			c.setErrno(unix.ETIMEDOUT)
			return exitErr("connect", ExitConnTimeout, unix.ETIMEDOUT)
		}
		c.Warnf("connect to %v timed out, retry %d/%d", remote, timeouts, env.ConnectRetries)
	}
}

// awaitConnected polls for writability and checks SO_ERROR.
// (true, nil) means connected, (false, nil) means the poll timed out
// and the caller should account a retry.
func (c *Client) awaitConnected(fd int, timeout time.Duration) (bool, error) {
	for {
		if c.interrupted.Load() {
			return false, exitErr("connect", ExitInterrupted, unix.EINTR)
		}

		pfds := []unix.PollFd{
			{Fd: int32(fd), Events: unix.POLLOUT},
			c.wake.pollFd(),
		}
		n, err := unix.Poll(pfds, int(timeout/time.Millisecond))
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			c.setErrno(errnoOf(err))
			return false, exitErr("connect", ExitPollError, errnoOf(err))
		}
		if n == 0 {
			return false, nil
		}
		if pfds[1].Revents != 0 {
			return false, exitErr("connect", ExitInterrupted, unix.EINTR)
		}

		soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
		if gerr != nil {
			c.setErrno(errnoOf(gerr))
			return false, exitErr("connect", ExitConnFailed, errnoOf(gerr))
		}
		switch syscall.Errno(soerr) {
		case 0:
			return true, nil
		case unix.ETIMEDOUT:
			return false, nil
		case unix.EINPROGRESS, unix.EALREADY, unix.EINTR:
			continue
		default:
			c.setErrno(syscall.Errno(soerr))
			return false, exitErr("connect", ExitConnFailed, syscall.Errno(soerr))
		}
	}
}

// String appends the peer to the core state description.
func (c *Client) String() string {
	s := c.core.String()
	if !c.remote.Addr.IsAny() {
		s += " remote " + c.remote.String()
	}
	return s
}

// Close tears the channel down. Safe to call from any goroutine,
// including while another is blocked in Open/Read/Write; the blocked
// call returns ExitInterrupted in bounded time. Idempotent.
func (c *Client) Close() error {
	return c.shutdown()
}

// Read receives one SDU into p. The descriptor is polled for
// readability first, with the configured timeout; an idle poll maps to
// the benign ExitPollTimeout code (errno ETIMEDOUT), never to a
// zero-byte success. EAGAIN/EINTR are retried internally and never
// surface. Reads run outside mu so a writer holding the lock cannot
// stall them; coordination with close() happens through the wakeup
// token and the interrupted flag.
func (c *Client) Read(p []byte) (int, error) {
	if !c.opened.Load() {
		return 0, exitErr("read", ExitNotOpen, 0)
	}
	fd := c.fd.Load()
	if fd < 0 {
		return 0, exitErr("read", ExitBadDescriptor, unix.EBADF)
	}

	c.blockedIn.Store(opRead)
	defer c.blockedIn.Store(opNone)

	timeout := Environment().PollTimeout

	for {
		if c.interrupted.Load() {
			return 0, exitErr("read", ExitInterrupted, unix.EINTR)
		}

		pfds := []unix.PollFd{
			{Fd: fd, Events: unix.POLLIN},
			c.wake.pollFd(),
		}
		n, err := unix.Poll(pfds, int(timeout/time.Millisecond))
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			c.setErrno(errnoOf(err))
			return 0, exitErr("read", ExitPollError, errnoOf(err))
		}
		if n == 0 {
			c.setErrno(unix.ETIMEDOUT)
			return 0, exitErr("read", ExitPollTimeout, unix.ETIMEDOUT)
		}
		if pfds[1].Revents != 0 {
			return 0, exitErr("read", ExitInterrupted, unix.EINTR)
		}
		break
	}

	for {
		if !c.opened.Load() || c.interrupted.Load() {
			return 0, exitErr("read", ExitInterrupted, unix.EINTR)
		}

		n, err := unix.Read(int(fd), p)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			if c.interrupted.Load() {
				return 0, exitErr("read", ExitInterrupted, unix.EINTR)
			}
			return 0, c.ioError("read", ExitReadError, errnoOf(err))
		}
		return n, nil
	}
}

// Write sends one SDU. Writes are serialized through mu against each
// other and against open/close, so they never interleave on a half-open
// socket; there is no poll stage.
func (c *Client) Write(p []byte) (int, error) {
	if !c.opened.Load() {
		return 0, exitErr("write", ExitNotOpen, 0)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	fd := c.fd.Load()
	if fd < 0 {
		return 0, exitErr("write", ExitBadDescriptor, unix.EBADF)
	}

	for {
		if !c.opened.Load() || c.interrupted.Load() {
			return 0, exitErr("write", ExitInterrupted, unix.EINTR)
		}

		n, err := unix.Write(int(fd), p)
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return 0, c.ioError("write", ExitWriteError, errnoOf(err))
		}
		return n, nil
	}
}

func errnoOf(err error) syscall.Errno {
	if e, ok := err.(syscall.Errno); ok {
		return e
	}
	return 0
}
