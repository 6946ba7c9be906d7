package blair

import (
	"fmt"
	"time"
)

// RawFrame is one frame as read from a transport, with the VLAN tag the kernel
// stripped from it, if any.
type RawFrame struct {
	Data []byte
	Aux  *AuxVlan
}

// Transport moves raw frames in and out of one interface.
type Transport interface {
	Open() error
	Close() error

	// Receive waits at most the transport's receive timeout for a frame. It returns
	// nil, nil on timeout.
	Receive() (*RawFrame, error)
	Send(data []byte) error
	IsUp() bool
}

// Indexer is implemented by transports bound to a kernel interface.
type Indexer interface {
	Index() int
}

// TransportFactory creates the transport for a named interface.
type TransportFactory func(kind, name string, timeout time.Duration) (Transport, error)

const (
	TransportPacket = "packet"
	TransportTap    = "tap"
)

// DefaultTransportFactory opens AF_PACKET sockets for "packet" and TAP devices for
// "tap".
func DefaultTransportFactory(kind, name string, timeout time.Duration) (Transport, error) {
	switch kind {
	case "", TransportPacket:
		t, err := NewPacketTransport(name, timeout)
		if err != nil {
			return nil, err
		}

		return t, nil
	case TransportTap:
		return NewTapTransport(name, timeout), nil
	default:
		return nil, fmt.Errorf("%w: unknown transport %q", ErrConfig, kind)
	}
}
