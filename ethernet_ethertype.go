package blair

import "fmt"

// EtherType is the 16 bit protocol identifier that follows the MAC addresses (and
// the 802.1Q tag, if any) in an Ethernet II frame.
type EtherType uint16

// Common EtherType values
const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	EtherTypeRARP EtherType = 0x8035
	EtherTypeVLAN EtherType = 0x8100
	EtherTypeIPv6 EtherType = 0x86dd
	EtherTypeQinQ EtherType = 0x88a8
	EtherTypeLLDP EtherType = 0x88cc
)

var etherTypeNames = map[EtherType]string{
	EtherTypeIPv4: "IPv4",
	EtherTypeARP:  "ARP",
	EtherTypeRARP: "RARP",
	EtherTypeVLAN: "802.1Q",
	EtherTypeIPv6: "IPv6",
	EtherTypeQinQ: "802.1ad",
	EtherTypeLLDP: "LLDP",
}

func (e EtherType) String() string {
	if name, ok := etherTypeNames[e]; ok {
		return name
	}

	return fmt.Sprintf("0x%04x", uint16(e))
}
