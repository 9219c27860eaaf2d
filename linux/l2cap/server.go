//go:build linux
// +build linux

package l2cap

import (
	"github.com/openbt/l2chan"
	"golang.org/x/sys/unix"
)

const listenBacklog = 1

// Server is a listening L2CAP endpoint. Accept yields a ready Client
// per inbound connection; Close cancels a blocked Accept the same way
// Client.Close cancels a blocked Read.
type Server struct {
	core
}

// NewServer returns a closed server channel for the given psm/cid pair.
func NewServer(psm Psm, cid Cid, l l2chan.Logger) *Server {
	s := &Server{}
	s.init(psm, cid, "server", l)
	return s
}

// Open binds the local address/psm/cid triple and starts listening.
// Concurrent opens see ExitAlreadyOpen.
func (s *Server) Open(dev l2chan.Device) error {
	if !s.opened.CompareAndSwap(false, true) {
		return exitErr("listen", ExitAlreadyOpen, 0)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened.Load() {
		return exitErr("listen", ExitInterrupted, unix.EINTR)
	}

	s.interrupted.Store(false)
	s.ioErr.Store(false)
	s.lastErrno.Store(0)
	if err := s.armWaker(); err != nil {
		s.opened.Store(false)
		return err
	}

	s.devID = dev.ID()
	s.local = dev.Address()

	fd, err := openSocket(s.local, s.psm, s.cid)
	if err != nil {
		s.opened.Store(false)
		return err
	}

	if err := unix.Listen(fd, listenBacklog); err != nil {
		unix.Close(fd)
		s.opened.Store(false)
		s.setErrno(errnoOf(err))
		return exitErr("listen", ExitConnFailed, errnoOf(err))
	}

	s.fd.Store(int32(fd))
	s.Infof("listening on %v", s.local)
	return nil
}

// Accept blocks until an inbound connection arrives, then hands the
// accepted descriptor to a new Client; the server retains no ownership
// of it. Timeouts are retried up to the connect retry budget; close()
// cancels a blocked Accept with ExitInterrupted.
func (s *Server) Accept() (*Client, error) {
	if !s.opened.Load() {
		return nil, exitErr("accept", ExitNotOpen, 0)
	}
	fd := s.fd.Load()
	if fd < 0 {
		return nil, exitErr("accept", ExitBadDescriptor, unix.EBADF)
	}

	s.blockedIn.Store(opAccept)
	defer s.blockedIn.Store(opNone)

	env := Environment()
	timeouts := 0

	for {
		if !s.opened.Load() || s.interrupted.Load() {
			return nil, exitErr("accept", ExitInterrupted, unix.EINTR)
		}

		pfds := []unix.PollFd{
			{Fd: fd, Events: unix.POLLIN},
			s.wake.pollFd(),
		}
		n, err := unix.Poll(pfds, int(env.PollTimeout.Milliseconds()))
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			s.setErrno(errnoOf(err))
			return nil, exitErr("accept", ExitPollError, errnoOf(err))
		}
		if n == 0 {
			timeouts++
			if timeouts > env.ConnectRetries {
				s.setErrno(unix.ETIMEDOUT)
				return nil, exitErr("accept", ExitConnTimeout, unix.ETIMEDOUT)
			}
			s.Debugf("accept timeout, retry %d/%d", timeouts, env.ConnectRetries)
			continue
		}
		if pfds[1].Revents != 0 {
			return nil, exitErr("accept", ExitInterrupted, unix.EINTR)
		}

		nfd, raw, aerr := accept4(int(fd))
		switch aerr {
		case nil:
			// fallthrough below
		case unix.EINTR, unix.EAGAIN:
			continue
		default:
			if s.interrupted.Load() {
				return nil, exitErr("accept", ExitInterrupted, unix.EINTR)
			}
			return nil, s.ioError("accept", ExitReadError, errnoOf(aerr))
		}

		remote, psm, cid := parseSockaddrL2(raw[:])
		if psm == PsmUndefined {
			psm = s.psm
		}
		if cid == CidUndefined {
			cid = s.cid
		}

		c, cerr := newAcceptedClient(nfd, s.devID, s.local, remote, psm, cid, s.Logger)
		if cerr != nil {
			return nil, cerr
		}
		s.Infof("accepted %v", remote)
		return c, nil
	}
}

// Close stops listening and cancels a blocked Accept. Idempotent, safe
// from any goroutine.
func (s *Server) Close() error {
	return s.shutdown()
}
