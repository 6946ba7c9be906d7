//go:build linux

package blair

import (
	"errors"
	"fmt"
	"sync"
	"time"
	"unsafe"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// PacketTransport is an AF_PACKET raw socket bound to a single kernel interface.
type PacketTransport struct {
	name    string
	index   int
	timeout time.Duration

	// mu guards fd: Send and Receive hold it shared, Open and Close exclusively, so a
	// closed descriptor number is never reused underneath a concurrent send.
	mu  sync.RWMutex
	fd  int
	buf []byte
	oob []byte
}

var sizeofAuxdata = int(unsafe.Sizeof(unix.TpacketAuxdata{}))

// NewPacketTransport resolves name via netlink. The socket is not opened until Open.
func NewPacketTransport(name string, timeout time.Duration) (*PacketTransport, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup interface %q: %s", ErrTransport, name, err)
	}

	return &PacketTransport{
		name:    name,
		index:   link.Attrs().Index,
		timeout: timeout,
		fd:      -1,
		buf:     make([]byte, ReadBufferSize),
		oob:     make([]byte, unix.CmsgSpace(sizeofAuxdata)),
	}, nil
}

func (t *PacketTransport) Index() int {
	return t.index
}

func (t *PacketTransport) IsUp() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.fd >= 0
}

func (t *PacketTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fd >= 0 {
		return nil
	}

	link, err := netlink.LinkByIndex(t.index)
	if err != nil {
		return fmt.Errorf("%w: lookup interface %q: %s", ErrTransport, t.name, err)
	}

	if err = netlink.SetPromiscOn(link); err != nil {
		return fmt.Errorf("%w: set %q promiscuous: %s", ErrTransport, t.name, err)
	}

	if err = netlink.LinkSetUp(link); err != nil {
		log.WithField("port", t.name).WithField("error", err).Warn("failed setting link up")
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(EthPAll)))
	if err != nil {
		return fmt.Errorf("%w: open socket on %q: %s", ErrTransport, t.name, err)
	}

	if err = t.configure(fd); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("%w: configure socket on %q: %s", ErrTransport, t.name, err)
	}

	t.fd = fd

	log.WithField("port", t.name).WithField("ifindex", t.index).Debug("opened packet socket")

	return nil
}

func (t *PacketTransport) configure(fd int) error {
	if err := unix.SetsockoptInt(fd, unix.SOL_PACKET, unix.PACKET_AUXDATA, 1); err != nil {
		return err
	}

	tv := unix.NsecToTimeval(t.timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return err
	}

	return unix.Bind(fd, &unix.SockaddrLinklayer{
		Protocol: htons(EthPAll),
		Ifindex:  t.index,
	})
}

func (t *PacketTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.fd < 0 {
		return nil
	}

	err := unix.Close(t.fd)
	t.fd = -1

	if link, lerr := netlink.LinkByIndex(t.index); lerr == nil {
		_ = netlink.SetPromiscOff(link)
	}

	if err != nil {
		return fmt.Errorf("%w: close socket on %q: %s", ErrTransport, t.name, err)
	}

	return nil
}

// Receive is only called from the port's worker, so buf and oob are not shared.
func (t *PacketTransport) Receive() (*RawFrame, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fd < 0 {
		return nil, ErrPortDown
	}

	for {
		n, oobn, flags, from, err := unix.Recvmsg(t.fd, t.buf, t.oob, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
				return nil, nil
			}

			return nil, fmt.Errorf("%w: receive on %q: %s", ErrTransport, t.name, err)
		}

		// frames we transmitted are looped back to packet sockets
		if ll, ok := from.(*unix.SockaddrLinklayer); ok && ll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}

		frame := &RawFrame{Data: append([]byte(nil), t.buf[:n]...)}

		if flags&unix.MSG_CTRUNC == 0 {
			frame.Aux = parseAuxdata(t.oob[:oobn])
		}

		return frame, nil
	}
}

func parseAuxdata(oob []byte) *AuxVlan {
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil
	}

	for _, cmsg := range cmsgs {
		if cmsg.Header.Level != unix.SOL_PACKET || cmsg.Header.Type != unix.PACKET_AUXDATA {
			continue
		}

		if len(cmsg.Data) < sizeofAuxdata {
			continue
		}

		aux := (*unix.TpacketAuxdata)(unsafe.Pointer(&cmsg.Data[0]))
		if aux.Status&unix.TP_STATUS_VLAN_VALID == 0 {
			return nil
		}

		tpid := EtherTypeVLAN
		if aux.Status&unix.TP_STATUS_VLAN_TPID_VALID != 0 {
			tpid = EtherType(aux.Vlan_tpid)
		}

		return &AuxVlan{TPID: tpid, TCI: aux.Vlan_tci}
	}

	return nil
}

func (t *PacketTransport) Send(data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.fd < 0 {
		return ErrPortDown
	}

	if _, err := unix.Write(t.fd, data); err != nil {
		return fmt.Errorf("%w: send on %q: %s", ErrTransport, t.name, err)
	}

	return nil
}
