package acl

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/openbt/l2chan/linux/l2cap"
)

// buildFragment assembles [len:le16][cid:le16][payload] with the given
// declared length.
func buildFragment(declared uint16, cid uint16, payload []byte) []byte {
	b := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(b[0:2], declared)
	binary.LittleEndian.PutUint16(b[2:4], cid)
	copy(b[4:], payload)
	return b
}

func handleFlags(handle uint16, pb PacketBoundary, bc uint8) uint16 {
	return handle&0x0fff | uint16(pb)<<12 | uint16(bc)<<14
}

func TestDemuxRoundTrip(t *testing.T) {
	payloads := [][]byte{
		{},
		{0xa5},
		bytes.Repeat([]byte{0x5a}, 0xffff),
	}

	for _, p := range payloads {
		frag := buildFragment(uint16(len(p)), 0x0040, p)
		v, err := Demux(handleFlags(0x0123, PBStartFlush, 0), frag)
		if err != nil {
			t.Fatalf("demux len %v: %v", len(p), err)
		}
		if v.Handle != 0x0123 {
			t.Fatalf("handle 0x%04x, want 0x0123", v.Handle)
		}
		if v.Cid != l2cap.Cid(0x0040) {
			t.Fatalf("cid %v, want 0x0040", v.Cid)
		}
		if !bytes.Equal(v.Payload, p) {
			t.Fatalf("payload mismatch at len %v", len(p))
		}
	}
}

func TestDemuxTolerantOfTrailingBytes(t *testing.T) {
	p := []byte{1, 2, 3}
	frag := buildFragment(uint16(len(p)), 0x0004, append(p, 0xde, 0xad))

	v, err := Demux(handleFlags(1, PBStartNonFlush, 0), frag)
	if err != nil {
		t.Fatalf("oversized fragment dropped: %v", err)
	}
	if !bytes.Equal(v.Payload, p) {
		t.Fatalf("payload %x, want %x (trailing bytes trimmed)", v.Payload, p)
	}
}

func TestDemuxDropsLengthOverrun(t *testing.T) {
	p := []byte{1, 2, 3}
	frag := buildFragment(uint16(len(p))+1, 0x0004, p)

	if _, err := Demux(handleFlags(1, PBStartNonFlush, 0), frag); err != DropLengthOverrun {
		t.Fatalf("overrun fragment: %v, want DropLengthOverrun", err)
	}
}

func TestDemuxDropsTruncatedHeader(t *testing.T) {
	for n := 0; n < 4; n++ {
		frag := make([]byte, n)
		if _, err := Demux(handleFlags(1, PBStartFlush, 0), frag); err != DropTruncatedHeader {
			t.Fatalf("header of %v bytes: %v, want DropTruncatedHeader", n, err)
		}
	}
}

func TestDemuxDropsContinuation(t *testing.T) {
	// Even a perfectly formed header is dropped on a continuing
	// fragment; reassembly belongs to the caller.
	frag := buildFragment(1, 0x0040, []byte{0xaa})
	if _, err := Demux(handleFlags(1, PBContinuing, 0), frag); err != DropContinuation {
		t.Fatalf("continuation fragment: %v, want DropContinuation", err)
	}
}

func TestDemuxFlags(t *testing.T) {
	frag := buildFragment(0, 0x0040, nil)

	v, err := Demux(handleFlags(0x0fff, PBCompleteFlush, 1), frag)
	if err != nil {
		t.Fatalf("demux: %v", err)
	}
	if v.Handle != 0x0fff || v.Boundary != PBCompleteFlush || !v.Broadcast {
		t.Fatalf("flags: handle 0x%04x pb %v bc %v", v.Handle, v.Boundary, v.Broadcast)
	}
}

func TestDemuxPacketAccessors(t *testing.T) {
	inner := buildFragment(2, 0x0004, []byte{0x02, 0x01})
	pkt := make(Packet, 4+len(inner))
	binary.LittleEndian.PutUint16(pkt[0:2], handleFlags(7, PBStartFlush, 0))
	binary.LittleEndian.PutUint16(pkt[2:4], uint16(len(inner)))
	copy(pkt[4:], inner)

	if pkt.Handle() != 7 || pkt.Boundary() != PBStartFlush || pkt.DataLen() != len(inner) {
		t.Fatalf("accessors: handle %v pb %v dlen %v", pkt.Handle(), pkt.Boundary(), pkt.DataLen())
	}
	if !pkt.Valid() {
		t.Fatal("well-formed packet reported invalid")
	}

	v, err := DemuxPacket(pkt)
	if err != nil {
		t.Fatalf("demux packet: %v", err)
	}
	if v.Cid != l2cap.CidATT || !bytes.Equal(v.Payload, []byte{0x02, 0x01}) {
		t.Fatalf("frame: cid %v payload %x", v.Cid, v.Payload)
	}
}
