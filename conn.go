package l2chan

// Channel is the outward surface of a connection-oriented L2CAP
// endpoint once it is open: raw SDU exchange plus teardown. The
// concrete implementations live in linux/l2cap.
type Channel interface {
	// Read receives one SDU. The error taxonomy (idle poll timeout,
	// interruption, I/O error) is defined by the implementation.
	Read(p []byte) (int, error)

	// Write sends one SDU.
	Write(p []byte) (int, error)

	// Close tears the channel down. Idempotent; safe to call from a
	// goroutine other than the one blocked in Read or Write.
	Close() error

	// LocalAddr returns the bound local address.
	LocalAddr() AddrAndType

	// RemoteAddr returns the peer's address.
	RemoteAddr() AddrAndType

	// String describes the channel state for diagnostics.
	String() string
}
