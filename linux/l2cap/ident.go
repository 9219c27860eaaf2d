package l2cap

import "fmt"

// Psm is a protocol/service multiplexer. Values outside the named
// constants pass through untouched; dynamic assignments are legal.
type Psm uint16

// Well-known PSMs [Assigned Numbers, Logical Link Control].
const (
	PsmUndefined     Psm = 0x0000
	PsmSDP           Psm = 0x0001
	PsmRFCOMM        Psm = 0x0003
	PsmTCSBIN        Psm = 0x0005
	PsmBNEP          Psm = 0x000f
	PsmHIDControl    Psm = 0x0011
	PsmHIDInterrupt  Psm = 0x0013
	PsmAVCTP         Psm = 0x0017
	PsmAVDTP         Psm = 0x0019
	PsmATT           Psm = 0x001f
	PsmLEDynamicMin  Psm = 0x0080
	PsmLEDynamicMax  Psm = 0x00ff
	PsmDynamicMin    Psm = 0x1001
)

// IsLEDynamic reports whether p falls in the LE credit-based dynamic range.
func (p Psm) IsLEDynamic() bool {
	return p >= PsmLEDynamicMin && p <= PsmLEDynamicMax
}

func (p Psm) String() string {
	switch p {
	case PsmUndefined:
		return "undefined"
	case PsmSDP:
		return "sdp"
	case PsmRFCOMM:
		return "rfcomm"
	case PsmHIDControl:
		return "hid-control"
	case PsmHIDInterrupt:
		return "hid-interrupt"
	case PsmAVCTP:
		return "avctp"
	case PsmAVDTP:
		return "avdtp"
	case PsmATT:
		return "att"
	default:
		return fmt.Sprintf("0x%04x", uint16(p))
	}
}

// Cid is an L2CAP channel identifier. Fixed channels occupy the
// reserved range below CidDynamicMin [Vol 3, Part A, 2.1].
type Cid uint16

const (
	CidUndefined   Cid = 0x0000
	CidSignaling   Cid = 0x0001
	CidConnless    Cid = 0x0002
	CidAMPManager  Cid = 0x0003
	CidATT         Cid = 0x0004
	CidLESignaling Cid = 0x0005
	CidSMP         Cid = 0x0006
	CidSMPBREDR    Cid = 0x0007
	CidDynamicMin  Cid = 0x0040
	CidDynamicMax  Cid = 0xffff
)

// IsDynamic reports whether c falls in the dynamically allocated range.
func (c Cid) IsDynamic() bool {
	return c >= CidDynamicMin
}

func (c Cid) String() string {
	switch c {
	case CidUndefined:
		return "undefined"
	case CidSignaling:
		return "signaling"
	case CidConnless:
		return "connless"
	case CidATT:
		return "att"
	case CidLESignaling:
		return "le-signaling"
	case CidSMP:
		return "smp"
	case CidSMPBREDR:
		return "smp-bredr"
	default:
		return fmt.Sprintf("0x%04x", uint16(c))
	}
}

// SecurityLevel is the negotiated encryption/authentication strength of
// a channel. The numeric values match the kernel's BT_SECURITY levels,
// with Unset below the settable minimum.
type SecurityLevel uint8

const (
	SecLevelUnset       SecurityLevel = 0 // no level negotiated / unsupported
	SecLevelNone        SecurityLevel = 1 // BT_SECURITY_LOW
	SecLevelEncOnly     SecurityLevel = 2 // BT_SECURITY_MEDIUM, unauthenticated encryption
	SecLevelEncAuth     SecurityLevel = 3 // BT_SECURITY_HIGH, authenticated encryption
	SecLevelEncAuthFips SecurityLevel = 4 // BT_SECURITY_FIPS, secure connections only
)

func (l SecurityLevel) String() string {
	switch l {
	case SecLevelNone:
		return "none"
	case SecLevelEncOnly:
		return "enc-only"
	case SecLevelEncAuth:
		return "enc-auth"
	case SecLevelEncAuthFips:
		return "enc-auth-fips"
	default:
		return "unset"
	}
}
