//go:build !linux

package blair

import (
	"fmt"
	"time"
)

// PacketTransport requires AF_PACKET and is only available on linux.
type PacketTransport struct{}

func NewPacketTransport(name string, _ time.Duration) (*PacketTransport, error) {
	return nil, fmt.Errorf("%w: packet sockets are not supported on this platform (%q)", ErrTransport, name)
}

func (*PacketTransport) Open() error                 { return ErrTransport }
func (*PacketTransport) Close() error                { return nil }
func (*PacketTransport) Receive() (*RawFrame, error) { return nil, ErrTransport }
func (*PacketTransport) Send([]byte) error           { return ErrTransport }
func (*PacketTransport) IsUp() bool                  { return false }
func (*PacketTransport) Index() int                  { return 0 }

// TapTransport requires linux TAP devices.
type TapTransport struct{ PacketTransport }

func NewTapTransport(string, time.Duration) *TapTransport {
	return &TapTransport{}
}
