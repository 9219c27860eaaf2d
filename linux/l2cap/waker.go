//go:build linux
// +build linux

package l2cap

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// waker is the cancellation token shared between a channel's blocking
// operations and close(). Blocking calls poll the eventfd next to the
// socket descriptor; close() signals it, forcing the poll to return in
// bounded time so the interrupted flag can be observed. The eventfd
// lives for the lifetime of the channel object and is drained at the
// start of each session.
type waker struct {
	fd int
}

func newWaker() (*waker, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, errors.Wrap(err, "can't create wakeup eventfd")
	}
	return &waker{fd: fd}, nil
}

// signal unblocks any poller. Never blocks; the counter saturates.
func (w *waker) signal() {
	buf := [8]byte{0: 1}
	unix.Write(w.fd, buf[:])
}

// drain resets the counter so a new session starts unsignaled.
func (w *waker) drain() {
	var buf [8]byte
	unix.Read(w.fd, buf[:]) // nonblocking, EAGAIN when already clear
}

func (w *waker) pollFd() unix.PollFd {
	return unix.PollFd{Fd: int32(w.fd), Events: unix.POLLIN}
}
