package blair

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// MaxVlanID is the highest VLAN id an 802.1Q tag can carry. Ids 0 and 4095 are
	// reserved on the wire, ports may only be configured within [MinPortVlan, MaxPortVlan].
	MaxVlanID = 0x0fff

	MinPortVlan = 1
	MaxPortVlan = 4095

	// DefaultVlan is the access VLAN a port starts in.
	DefaultVlan = 1

	tagLen = 4
)

// Tag is a single IEEE 802.1Q tag: the TPID plus the three TCI fields.
type Tag struct {
	TPID         EtherType
	Priority     uint8
	DropEligible bool
	VlanID       uint16
}

// NewTag returns a default-priority 802.1Q tag for vlan.
func NewTag(vlan uint16) (*Tag, error) {
	if vlan > MaxVlanID {
		return nil, fmt.Errorf("%w: %d does not fit a 12 bit vlan id", ErrInvalidVlan, vlan)
	}

	return &Tag{TPID: EtherTypeVLAN, VlanID: vlan}, nil
}

// TCI packs priority, drop eligibility and VLAN id into the tag control information
// field.
func (t *Tag) TCI() uint16 {
	// 3 bits: priority
	tci := uint16(t.Priority&0x07) << 13

	// 1 bit: drop eligible
	if t.DropEligible {
		tci |= 1 << 12
	}

	// 12 bits: VLAN ID
	return tci | t.VlanID&MaxVlanID
}

func tagFromTCI(tpid EtherType, tci uint16) *Tag {
	return &Tag{
		TPID:         tpid,
		Priority:     uint8(tci >> 13),
		DropEligible: tci&0x1000 != 0,
		VlanID:       tci & MaxVlanID,
	}
}

// MarshalBinary returns the 4 byte wire form of the tag.
func (t *Tag) MarshalBinary() ([]byte, error) {
	b := make([]byte, tagLen)
	binary.BigEndian.PutUint16(b[0:2], uint16(t.TPID))
	binary.BigEndian.PutUint16(b[2:4], t.TCI())

	return b, nil
}

// UnmarshalBinary reads a tag from exactly 4 bytes.
func (t *Tag) UnmarshalBinary(b []byte) error {
	if len(b) != tagLen {
		return io.ErrUnexpectedEOF
	}

	*t = *tagFromTCI(EtherType(binary.BigEndian.Uint16(b[0:2])), binary.BigEndian.Uint16(b[2:4]))

	return nil
}

func (t *Tag) String() string {
	return fmt.Sprintf("vlan %d pcp %d dei %t", t.VlanID, t.Priority, t.DropEligible)
}

// AuxVlan is VLAN metadata the kernel reports out of band when the NIC stripped the
// tag from the frame (rx-vlan-offload).
type AuxVlan struct {
	TPID EtherType
	TCI  uint16
}

// ValidPortVlan reports whether vlan may be assigned to an access port or a trunk
// allow-list.
func ValidPortVlan(vlan int) bool {
	return vlan >= MinPortVlan && vlan <= MaxPortVlan
}
