package l2chan

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// AddrType tags a 48-bit device address with its address space.
type AddrType uint8

const (
	AddrTypePublic AddrType = 0x00
	AddrTypeRandom AddrType = 0x01
	AddrTypeBREDR  AddrType = 0x02

	AddrTypeUndefined AddrType = 0xff
)

func (t AddrType) String() string {
	switch t {
	case AddrTypePublic:
		return "public"
	case AddrTypeRandom:
		return "random"
	case AddrTypeBREDR:
		return "bredr"
	default:
		return "undefined"
	}
}

// Addr is a 48-bit device address in display order: a[0] is the most
// significant octet, the first group of the "aa:bb:cc:dd:ee:ff" form.
// The zero value is the "any device" sentinel.
type Addr [6]byte

// AnyAddr matches any device when used as a local bind address.
var AnyAddr = Addr{}

// ParseAddr creates an Addr from the colon-separated hex form.
func ParseAddr(s string) (Addr, error) {
	hexStr := strings.Replace(strings.ToLower(s), ":", "", -1)

	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return Addr{}, errors.Wrapf(err, "can't decode address %q", s)
	}
	if len(b) != 6 {
		return Addr{}, errors.Errorf("address %q: want 6 octets, have %v", s, len(b))
	}

	var a Addr
	copy(a[:], b)
	return a, nil
}

func (a Addr) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x", a[0], a[1], a[2], a[3], a[4], a[5])
}

// Bytes returns a copy of the address in display order.
func (a Addr) Bytes() []byte {
	out := make([]byte, len(a))
	copy(out, a[:])
	return out
}

// WireBytes returns the address in on-air (little-endian) order, as
// carried in sockaddr_l2 and HCI structures.
func (a Addr) WireBytes() [6]byte {
	var w [6]byte
	copy(w[:], swapBuf(a[:]))
	return w
}

// AddrFromWire builds an Addr from on-air (little-endian) order bytes.
func AddrFromWire(w [6]byte) Addr {
	var a Addr
	copy(a[:], swapBuf(w[:]))
	return a
}

func (a Addr) IsAny() bool {
	return a == AnyAddr
}

// AddrAndType pairs an address with its type tag. Value equality.
type AddrAndType struct {
	Addr Addr
	Type AddrType
}

func (at AddrAndType) String() string {
	return fmt.Sprintf("[%s %s]", at.Addr, at.Type)
}

func swapBuf(in []byte) []byte {
	a := make([]byte, 0, len(in))
	a = append(a, in...)
	for i := len(a)/2 - 1; i >= 0; i-- {
		opp := len(a) - 1 - i
		a[i], a[opp] = a[opp], a[i]
	}

	return a
}
