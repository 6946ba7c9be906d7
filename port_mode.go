package blair

import (
	"fmt"
	"slices"
)

// PortMode is one of AccessMode, TrunkMode or MonitorMode.
type PortMode interface {
	// AllowsVlan reports whether a frame of vlan may leave through a port in this
	// mode. A monitoring port never allows any VLAN.
	AllowsVlan(vlan uint16) bool
	String() string

	portMode()
}

// AccessMode carries exactly one untagged VLAN.
type AccessMode struct {
	Vlan uint16
}

// TrunkMode carries the tagged VLANs of its allow-set.
type TrunkMode struct {
	Vlans VlanSet
}

// MonitorMode receives a copy of every frame sent out of Target and nothing else.
type MonitorMode struct {
	Target string
}

func (AccessMode) portMode()  {}
func (TrunkMode) portMode()   {}
func (MonitorMode) portMode() {}

func (m AccessMode) AllowsVlan(vlan uint16) bool {
	return m.Vlan == vlan
}

func (m TrunkMode) AllowsVlan(vlan uint16) bool {
	return m.Vlans.Contains(vlan)
}

func (MonitorMode) AllowsVlan(uint16) bool {
	return false
}

func (m AccessMode) String() string {
	return fmt.Sprintf("access vlan %d", m.Vlan)
}

func (m TrunkMode) String() string {
	if m.Vlans.Len() == 0 {
		return "trunk vlans none"
	}

	return fmt.Sprintf("trunk vlans %s", m.Vlans)
}

func (m MonitorMode) String() string {
	return fmt.Sprintf("monitor %s", m.Target)
}

// PortState is the published configuration of a port. A PortState is never mutated
// after it has been stored on a Port; the owning worker publishes a new one instead.
type PortState struct {
	Up   bool
	Mode PortMode
}

// DefaultPortState is the state of a freshly added port.
func DefaultPortState() *PortState {
	return &PortState{Mode: AccessMode{Vlan: DefaultVlan}}
}

func (s *PortState) with(mode PortMode) *PortState {
	return &PortState{Up: s.Up, Mode: mode}
}

func (s *PortState) withUp(up bool) *PortState {
	return &PortState{Up: up, Mode: s.Mode}
}

// IsMonitoring reports whether the port only receives mirrored traffic.
func (s *PortState) IsMonitoring() bool {
	_, ok := s.Mode.(MonitorMode)
	return ok
}

// Eligible reports whether the port may be an egress target for vlan.
func (s *PortState) Eligible(vlan uint16) bool {
	return s.Up && s.Mode.AllowsVlan(vlan)
}

// ingress applies the receive side VLAN policy in place. It returns false when the
// frame must be dropped.
func ingress(mode PortMode, f *Frame) bool {
	switch m := mode.(type) {
	case AccessMode:
		if f.IsTagged() {
			return false
		}

		return f.SetTag(m.Vlan) == nil
	case TrunkMode:
		return f.IsTagged() && m.Vlans.Contains(f.VLAN())
	case MonitorMode:
		return false
	default:
		panic(fmt.Sprintf("unknown port mode %T", mode))
	}
}

// egress applies the transmit side VLAN policy in place. It returns false when the
// frame must not be sent.
func egress(mode PortMode, f *Frame) bool {
	switch mode.(type) {
	case AccessMode:
		f.Untag()
		return true
	case TrunkMode:
		return f.IsTagged()
	case MonitorMode:
		return false
	default:
		panic(fmt.Sprintf("unknown port mode %T", mode))
	}
}

// VlanSet is an immutable, sorted set of VLAN ids.
type VlanSet struct {
	vlans []uint16
}

// NewVlanSet builds a set from vlans, ignoring duplicates.
func NewVlanSet(vlans ...uint16) VlanSet {
	return VlanSet{}.Add(vlans...)
}

func (s VlanSet) Contains(vlan uint16) bool {
	_, ok := slices.BinarySearch(s.vlans, vlan)
	return ok
}

func (s VlanSet) Len() int {
	return len(s.vlans)
}

// Slice returns the members in ascending order.
func (s VlanSet) Slice() []uint16 {
	return slices.Clone(s.vlans)
}

// Add returns a new set holding the members of s and vlans.
func (s VlanSet) Add(vlans ...uint16) VlanSet {
	out := slices.Clone(s.vlans)
	for _, v := range vlans {
		if i, ok := slices.BinarySearch(out, v); !ok {
			out = slices.Insert(out, i, v)
		}
	}

	return VlanSet{vlans: out}
}

// Remove returns a new set without vlans and the members that were actually removed.
func (s VlanSet) Remove(vlans ...uint16) (VlanSet, []uint16) {
	out := slices.Clone(s.vlans)
	var removed []uint16

	for _, v := range vlans {
		if i, ok := slices.BinarySearch(out, v); ok {
			out = slices.Delete(out, i, i+1)
			removed = append(removed, v)
		}
	}

	return VlanSet{vlans: out}, removed
}

func (s VlanSet) Equal(o VlanSet) bool {
	return slices.Equal(s.vlans, o.vlans)
}

// String renders the set compactly, e.g. "10,20,30-32".
func (s VlanSet) String() string {
	return FormatVlanList(s.vlans)
}
