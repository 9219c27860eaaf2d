package l2cap

import (
	"fmt"
	"syscall"
)

// ExitCode classifies why a channel operation returned without data.
// The values are negative so they can double as C-style return codes in
// diagnostics; callers should treat ExitPollTimeout as benign (idle
// channel) and every other code as noteworthy.
type ExitCode int

const (
	ExitNotOpen       ExitCode = -1 // channel never opened or already closed
	ExitInterrupted   ExitCode = -2 // close() cancelled the blocking call
	ExitBadDescriptor ExitCode = -3 // descriptor invalid at syscall time
	ExitPollError     ExitCode = -4 // poll itself failed
	ExitPollTimeout   ExitCode = -5 // no data within the poll timeout
	ExitReadError     ExitCode = -6 // read syscall failed
	ExitWriteError    ExitCode = -7 // write syscall failed
	ExitConnTimeout   ExitCode = -8 // connect retry budget exhausted
	ExitConnFailed    ExitCode = -9 // connect failed with a hard error
	ExitAlreadyOpen   ExitCode = -10
	ExitSecurity      ExitCode = -11 // security level could not be applied
)

func (c ExitCode) String() string {
	switch c {
	case ExitNotOpen:
		return "not open"
	case ExitInterrupted:
		return "interrupted"
	case ExitBadDescriptor:
		return "bad descriptor"
	case ExitPollError:
		return "poll error"
	case ExitPollTimeout:
		return "poll timeout"
	case ExitReadError:
		return "read error"
	case ExitWriteError:
		return "write error"
	case ExitConnTimeout:
		return "connect timeout"
	case ExitConnFailed:
		return "connect failed"
	case ExitAlreadyOpen:
		return "already open"
	case ExitSecurity:
		return "security setup failed"
	default:
		return fmt.Sprintf("exit(%d)", int(c))
	}
}

// ExitError is the typed failure of a channel operation: the exit code
// plus the originating errno, never a bare integer.
type ExitError struct {
	Op    string
	Code  ExitCode
	Errno syscall.Errno
}

func (e *ExitError) Error() string {
	if e.Errno != 0 {
		return fmt.Sprintf("l2cap %s: %s (errno %d: %s)", e.Op, e.Code, int(e.Errno), e.Errno.Error())
	}
	return fmt.Sprintf("l2cap %s: %s", e.Op, e.Code)
}

func exitErr(op string, code ExitCode, errno syscall.Errno) *ExitError {
	return &ExitError{Op: op, Code: code, Errno: errno}
}

// Code extracts the ExitCode from an operation error; 0 for nil or
// foreign errors.
func Code(err error) ExitCode {
	if ee, ok := err.(*ExitError); ok {
		return ee.Code
	}
	return 0
}

// IsTimeout reports whether err is the benign idle-poll timeout.
func IsTimeout(err error) bool {
	return Code(err) == ExitPollTimeout
}

// IsInterrupted reports whether err is close()-driven cancellation.
func IsInterrupted(err error) bool {
	return Code(err) == ExitInterrupted
}
