//go:build linux
// +build linux

package l2cap

import (
	"syscall"
	"unsafe"

	"github.com/openbt/l2chan"
	"golang.org/x/sys/unix"
)

// Kernel sockaddr_l2, packed layout, all multi-byte fields little
// endian [include/net/bluetooth/l2cap.h]:
//
//	0  u16  l2_family (AF_BLUETOOTH)
//	2  le16 l2_psm
//	4  u8x6 l2_bdaddr (on-air order)
//	10 le16 l2_cid
//	12 u8   l2_bdaddr_type
//	13 u8   pad
const sockaddrL2Size = 14

// Kernel bdaddr_type values differ from the HCI address-type
// enumeration; translate explicitly rather than casting.
const (
	bdaddrBREDR    = 0x00
	bdaddrLEPublic = 0x01
	bdaddrLERandom = 0x02
)

func toBdaddrType(t l2chan.AddrType) uint8 {
	switch t {
	case l2chan.AddrTypePublic:
		return bdaddrLEPublic
	case l2chan.AddrTypeRandom:
		return bdaddrLERandom
	default:
		return bdaddrBREDR
	}
}

func fromBdaddrType(v uint8) l2chan.AddrType {
	switch v {
	case bdaddrLEPublic:
		return l2chan.AddrTypePublic
	case bdaddrLERandom:
		return l2chan.AddrTypeRandom
	case bdaddrBREDR:
		return l2chan.AddrTypeBREDR
	default:
		return l2chan.AddrTypeUndefined
	}
}

func sockaddrL2(at l2chan.AddrAndType, psm Psm, cid Cid) *unix.SockaddrL2 {
	return &unix.SockaddrL2{
		PSM:      uint16(psm),
		CID:      uint16(cid),
		Addr:     [6]uint8(at.Addr), // display order; x/sys reverses on the wire
		AddrType: toBdaddrType(at.Type),
	}
}

// parseSockaddrL2 decodes a raw sockaddr_l2 through explicit
// little-endian accessors. A non-Bluetooth family yields the any-device
// sentinel rather than an error; the accept path tolerates it.
func parseSockaddrL2(raw []byte) (at l2chan.AddrAndType, psm Psm, cid Cid) {
	at.Type = l2chan.AddrTypeUndefined
	if len(raw) < 13 {
		return at, 0, 0
	}
	if le16(raw[0:2]) != unix.AF_BLUETOOTH {
		return at, 0, 0
	}

	psm = Psm(le16(raw[2:4]))
	var wire [6]byte
	copy(wire[:], raw[4:10])
	at.Addr = l2chan.AddrFromWire(wire)
	cid = Cid(le16(raw[10:12]))
	at.Type = fromBdaddrType(raw[12])
	return at, psm, cid
}

func le16(b []byte) uint16 {
	return uint16(b[0]) | uint16(b[1])<<8
}

// accept4 wraps the raw syscall; x/sys's Accept cannot decode
// AF_BLUETOOTH peer addresses and closes the new descriptor on the
// decode failure, so the sockaddr is parsed here instead.
func accept4(fd int) (nfd int, raw [sockaddrL2Size]byte, err error) {
	rawLen := uint32(len(raw))
	r0, _, e1 := unix.Syscall6(unix.SYS_ACCEPT4,
		uintptr(fd),
		uintptr(unsafe.Pointer(&raw[0])),
		uintptr(unsafe.Pointer(&rawLen)),
		0, 0, 0)
	if e1 != 0 {
		return -1, raw, e1
	}
	return int(r0), raw, nil
}

// Kernel bt_security, 2 bytes: level u8, key_size u8. x/sys carries
// SOL_BLUETOOTH but not the BT_* option names; the option number is
// from include/net/bluetooth/bluetooth.h.
const (
	btSecurityOptName = 4
	btSecuritySize    = 2
)

// secOpts abstracts the BT_SECURITY socket options so the negotiation
// logic is testable on plain sockets.
type secOpts interface {
	getSecurity(fd int) (level uint8, err error)
	setSecurity(fd int, level uint8) error
}

type btSecOpts struct{}

func (btSecOpts) getSecurity(fd int) (uint8, error) {
	var buf [btSecuritySize]byte
	bufLen := uint32(len(buf))
	_, _, e1 := unix.Syscall6(unix.SYS_GETSOCKOPT,
		uintptr(fd),
		uintptr(unix.SOL_BLUETOOTH),
		uintptr(btSecurityOptName),
		uintptr(unsafe.Pointer(&buf[0])),
		uintptr(unsafe.Pointer(&bufLen)),
		0)
	if e1 != 0 {
		return 0, syscall.Errno(e1)
	}
	return buf[0], nil
}

func (btSecOpts) setSecurity(fd int, level uint8) error {
	buf := [btSecuritySize]byte{0: level}
	return unix.SetsockoptString(fd, unix.SOL_BLUETOOTH, btSecurityOptName, string(buf[:]))
}
