package l2chan

// Device is the narrow view of the adapter/device object model that the
// channel layer consumes. The full model (HCI bring-up, address
// configuration, connection establishment) lives above this package.
type Device interface {
	// ID returns the adapter index (hciN).
	ID() int

	// Address returns the adapter's own address and address type, used
	// as the local half of a channel's bind triple.
	Address() AddrAndType
}
