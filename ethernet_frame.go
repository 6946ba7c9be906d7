package blair

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"

	"github.com/songgao/packets/ethernet"
)

// HeaderLen is the length of an untagged Ethernet II header.
const HeaderLen = 14

// MAC is a 48 bit hardware address usable as a map key.
type MAC [6]byte

// BroadcastMAC is the all-ones destination address.
var BroadcastMAC = MAC{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseMAC parses s in any format accepted by net.ParseMAC, as long as it is 48 bits.
func ParseMAC(s string) (MAC, error) {
	var m MAC

	hw, err := net.ParseMAC(s)
	if err != nil {
		return m, err
	}

	if len(hw) != len(m) {
		return m, fmt.Errorf("%q is not a 48 bit hardware address", s)
	}

	copy(m[:], hw)

	return m, nil
}

func (m MAC) String() string {
	return net.HardwareAddr(m[:]).String()
}

// Frame is a parsed Ethernet II frame with at most one 802.1Q tag. The frame is the
// unit moved through the forwarding pipeline; only Tag and Untag mutate it.
type Frame struct {
	Dst       MAC
	Src       MAC
	Tag       *Tag
	EtherType EtherType
	Payload   []byte
}

// ParseFrame decodes raw wire bytes. An inline 802.1Q tag is consumed and the real
// EtherType read behind it; otherwise aux, when present, attaches the tag the
// transport stripped. The payload references b.
func ParseFrame(b []byte, aux *AuxVlan) (*Frame, error) {
	if len(b) < HeaderLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(b))
	}

	raw := ethernet.Frame(b)
	f := &Frame{}

	copy(f.Dst[:], raw.Destination())
	copy(f.Src[:], raw.Source())

	etherType := EtherType(binary.BigEndian.Uint16(b[12:14]))
	if etherType == EtherTypeVLAN {
		if len(b) < HeaderLen+tagLen {
			return nil, fmt.Errorf("%w: tagged frame of %d bytes", ErrFrameTooShort, len(b))
		}

		f.Tag = tagFromTCI(etherType, binary.BigEndian.Uint16(b[14:16]))
		f.EtherType = EtherType(binary.BigEndian.Uint16(b[16:18]))
		f.Payload = b[HeaderLen+tagLen:]

		return f, nil
	}

	f.EtherType = etherType
	f.Payload = b[HeaderLen:]

	if aux != nil {
		tpid := aux.TPID
		if tpid == 0 {
			tpid = EtherTypeVLAN
		}

		f.Tag = tagFromTCI(tpid, aux.TCI)
	}

	return f, nil
}

// Len is the length of the frame on the wire.
func (f *Frame) Len() int {
	n := HeaderLen + len(f.Payload)
	if f.Tag != nil {
		n += tagLen
	}

	return n
}

// Bytes serializes the frame. The tag is emitted iff the frame is tagged.
func (f *Frame) Bytes() []byte {
	b := make([]byte, 0, f.Len())
	b = append(b, f.Dst[:]...)
	b = append(b, f.Src[:]...)

	if f.Tag != nil {
		b = binary.BigEndian.AppendUint16(b, uint16(f.Tag.TPID))
		b = binary.BigEndian.AppendUint16(b, f.Tag.TCI())
	}

	b = binary.BigEndian.AppendUint16(b, uint16(f.EtherType))

	return append(b, f.Payload...)
}

// VLAN returns the tag's VLAN id, or 0 for an untagged frame.
func (f *Frame) VLAN() uint16 {
	if f.Tag == nil {
		return 0
	}

	return f.Tag.VlanID
}

// IsTagged reports whether the frame carries an 802.1Q tag.
func (f *Frame) IsTagged() bool {
	return f.Tag != nil
}

// IsBroadcast reports whether the destination is the all-ones address.
func (f *Frame) IsBroadcast() bool {
	return f.Dst == BroadcastMAC
}

// SetTag tags the frame with vlan, replacing any existing tag.
func (f *Frame) SetTag(vlan uint16) error {
	tag, err := NewTag(vlan)
	if err != nil {
		return err
	}

	f.Tag = tag

	return nil
}

// Untag removes the 802.1Q tag, if any.
func (f *Frame) Untag() {
	f.Tag = nil
}

// Clone returns a deep copy, used when a frame fans out to several egress ports.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		Dst:       f.Dst,
		Src:       f.Src,
		EtherType: f.EtherType,
		Payload:   bytes.Clone(f.Payload),
	}

	if f.Tag != nil {
		tag := *f.Tag
		c.Tag = &tag
	}

	return c
}

func (f *Frame) String() string {
	tag := "untagged"
	if f.Tag != nil {
		tag = f.Tag.String()
	}

	return fmt.Sprintf("%s -> %s, %s, type %s, %d bytes", f.Src, f.Dst, tag, f.EtherType, f.Len())
}
