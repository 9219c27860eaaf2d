package l2chan

import "testing"

func TestParseAddrRoundTrip(t *testing.T) {
	for _, s := range []string{
		"00:1a:7d:da:71:13",
		"AA:BB:CC:DD:EE:FF",
		"aabbccddeeff",
	} {
		a, err := ParseAddr(s)
		if err != nil {
			t.Fatalf("ParseAddr(%q): %v", s, err)
		}
		b, err := ParseAddr(a.String())
		if err != nil {
			t.Fatalf("re-parse %q: %v", a.String(), err)
		}
		if a != b {
			t.Fatalf("round trip %q -> %v -> %v", s, a, b)
		}
	}
}

func TestParseAddrRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "00:11:22", "00:11:22:33:44:55:66", "zz:zz:zz:zz:zz:zz"} {
		if _, err := ParseAddr(s); err == nil {
			t.Fatalf("ParseAddr(%q) accepted", s)
		}
	}
}

func TestAddrWireOrder(t *testing.T) {
	a, _ := ParseAddr("00:1a:7d:da:71:13")

	w := a.WireBytes()
	if w != [6]byte{0x13, 0x71, 0xda, 0x7d, 0x1a, 0x00} {
		t.Fatalf("wire order %x", w)
	}
	if AddrFromWire(w) != a {
		t.Fatalf("wire round trip %v", AddrFromWire(w))
	}
}

func TestAnyAddrSentinel(t *testing.T) {
	if !AnyAddr.IsAny() {
		t.Fatal("AnyAddr not any")
	}
	a, _ := ParseAddr("00:00:00:00:00:01")
	if a.IsAny() {
		t.Fatal("non-zero address reported as any")
	}

	// Value equality on the composite type.
	x := AddrAndType{Addr: a, Type: AddrTypeRandom}
	y := AddrAndType{Addr: a, Type: AddrTypeRandom}
	if x != y {
		t.Fatal("equal AddrAndType values compare unequal")
	}
	if (AddrAndType{Addr: a, Type: AddrTypePublic}) == x {
		t.Fatal("type tag ignored in comparison")
	}
}
