package acl

import (
	"encoding/binary"
	"fmt"

	"github.com/openbt/l2chan/linux/l2cap"
)

// PacketBoundary is the PB flag of an HCI ACL Data packet, bits [4:5]
// of the handle field's MSB [Vol 2, Part E, 5.4.2].
type PacketBoundary uint8

const (
	PBStartNonFlush PacketBoundary = 0x00 // start of a non-automatically-flushable PDU, host to controller
	PBContinuing    PacketBoundary = 0x01 // continuing fragment
	PBStartFlush    PacketBoundary = 0x02 // start of an automatically-flushable PDU
	PBCompleteFlush PacketBoundary = 0x03 // complete automatically-flushable PDU (not used in LE-U)
)

func (pb PacketBoundary) String() string {
	switch pb {
	case PBStartNonFlush:
		return "start"
	case PBContinuing:
		return "cont"
	case PBStartFlush:
		return "flush-start"
	case PBCompleteFlush:
		return "flush-complete"
	default:
		return fmt.Sprintf("pb(%d)", uint8(pb))
	}
}

// l2capHdrSize is the basic L2CAP header: le16 length, le16 cid.
const l2capHdrSize = 4

// Packet is a raw HCI ACL Data packet (without the 1-byte HCI packet
// type indicator): le16 handle+flags, le16 data length, payload.
type Packet []byte

func (a Packet) Handle() uint16          { return binary.LittleEndian.Uint16(a[0:2]) & 0x0fff }
func (a Packet) Boundary() PacketBoundary { return PacketBoundary((a[1] >> 4) & 0x3) }
func (a Packet) Broadcast() uint8        { return (a[1] >> 6) & 0x3 }
func (a Packet) DataLen() int            { return int(binary.LittleEndian.Uint16(a[2:4])) }
func (a Packet) Data() []byte            { return a[4:] }

// Valid reports whether the fragment is long enough to carry its own
// header and declared payload.
func (a Packet) Valid() bool {
	return len(a) >= 4 && len(a) >= 4+a.DataLen()
}

// FrameView is one demultiplexed L2CAP frame. It aliases the caller's
// buffer and must be consumed before the buffer is reused.
type FrameView struct {
	Handle    uint16
	Boundary  PacketBoundary
	Broadcast bool
	Cid       l2cap.Cid
	Payload   []byte
}

// DropReason explains why a fragment was not demultiplexed.
type DropReason int

const (
	DropTruncatedHeader DropReason = iota + 1 // fragment shorter than the L2CAP header
	DropLengthOverrun                         // declared length exceeds the remaining bytes
	DropContinuation                          // PDU reassembly is not handled here
)

func (r DropReason) Error() string {
	switch r {
	case DropTruncatedHeader:
		return "acl: fragment truncates l2cap header"
	case DropLengthOverrun:
		return "acl: declared l2cap length exceeds fragment"
	case DropContinuation:
		return "acl: continuation fragment unsupported"
	default:
		return fmt.Sprintf("acl: drop(%d)", int(r))
	}
}

// Demux recovers the L2CAP frame carried by one link-layer fragment.
// handleFlags is the packet's first le16 word (connection handle plus
// PB/BC flags); payload is the fragment data after the ACL header.
//
// Continuing fragments are always dropped; reassembly across PDUs is
// the caller's concern. Fragments shorter than the L2CAP header, or
// whose declared length exceeds the remaining bytes, are dropped.
// Excess trailing bytes beyond the declared length are tolerated and
// trimmed, not an error.
func Demux(handleFlags uint16, payload []byte) (FrameView, error) {
	v := FrameView{
		Handle:    handleFlags & 0x0fff,
		Boundary:  PacketBoundary((handleFlags >> 12) & 0x3),
		Broadcast: (handleFlags>>14)&0x3 != 0,
	}

	if v.Boundary == PBContinuing {
		return FrameView{}, DropContinuation
	}
	if len(payload) < l2capHdrSize {
		return FrameView{}, DropTruncatedHeader
	}

	dlen := int(binary.LittleEndian.Uint16(payload[0:2]))
	v.Cid = l2cap.Cid(binary.LittleEndian.Uint16(payload[2:4]))

	rest := payload[l2capHdrSize:]
	if dlen > len(rest) {
		return FrameView{}, DropLengthOverrun
	}

	v.Payload = rest[:dlen]
	return v, nil
}

// DemuxPacket applies Demux to a whole ACL data packet.
func DemuxPacket(p Packet) (FrameView, error) {
	if len(p) < 4 {
		return FrameView{}, DropTruncatedHeader
	}
	return Demux(binary.LittleEndian.Uint16(p[0:2]), p.Data())
}
