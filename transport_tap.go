//go:build linux

package blair

import (
	"fmt"
	"io"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/songgao/packets/ethernet"
	"github.com/songgao/water"
	"github.com/vishvananda/netlink"
)

// TapTransport is a TAP device owned by the switch. Reads happen on a dedicated
// goroutine so Receive can honour its timeout.
type TapTransport struct {
	name    string
	timeout time.Duration

	mu     sync.RWMutex
	ifce   *water.Interface
	frames chan []byte
	errs   chan error
	done   chan struct{}
}

func NewTapTransport(name string, timeout time.Duration) *TapTransport {
	return &TapTransport{
		name:    name,
		timeout: timeout,
	}
}

func (t *TapTransport) Index() int {
	link, err := netlink.LinkByName(t.name)
	if err != nil {
		return 0
	}

	return link.Attrs().Index
}

func (t *TapTransport) IsUp() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.ifce != nil
}

func (t *TapTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ifce != nil {
		return nil
	}

	config := water.Config{
		DeviceType: water.TAP,
	}
	config.Name = t.name

	ifce, err := water.New(config)
	if err != nil {
		return fmt.Errorf("%w: create tap %q: %s", ErrTransport, t.name, err)
	}

	if link, err := netlink.LinkByName(ifce.Name()); err == nil {
		if err = netlink.LinkSetUp(link); err != nil {
			log.WithField("port", t.name).WithField("error", err).Warn("failed setting tap interface up")
		}
	}

	t.ifce = ifce
	t.frames = make(chan []byte, 64)
	t.errs = make(chan error, 1)
	t.done = make(chan struct{})

	go readFrames(ifce, t.frames, t.errs, t.done)

	log.WithField("port", t.name).Debug("opened tap interface")

	return nil
}

// readFrames copies frames from r until a read fails or done is closed. It never
// blocks on a full frames channel once done is closed.
func readFrames(r io.Reader, frames chan<- []byte, errs chan<- error, done <-chan struct{}) {
	defer close(frames)

	var frame ethernet.Frame
	for {
		frame.Resize(ReadBufferSize - HeaderLen)

		n, err := r.Read(frame)
		if err != nil {
			errs <- err
			return
		}

		select {
		case frames <- append([]byte(nil), frame[:n]...):
		case <-done:
			return
		}
	}
}

func (t *TapTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ifce == nil {
		return nil
	}

	close(t.done)

	err := t.ifce.Close()
	t.ifce = nil

	if err != nil {
		return fmt.Errorf("%w: close tap %q: %s", ErrTransport, t.name, err)
	}

	return nil
}

func (t *TapTransport) Receive() (*RawFrame, error) {
	t.mu.RLock()
	frames, errs, up := t.frames, t.errs, t.ifce != nil
	t.mu.RUnlock()

	if !up {
		return nil, ErrPortDown
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case data, ok := <-frames:
		if !ok {
			err := io.ErrClosedPipe
			select {
			case err = <-errs:
			default:
			}

			return nil, fmt.Errorf("%w: tap %q: %s", ErrTransport, t.name, err)
		}

		return &RawFrame{Data: data}, nil
	case <-timer.C:
		return nil, nil
	}
}

func (t *TapTransport) Send(data []byte) error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.ifce == nil {
		return ErrPortDown
	}

	if _, err := t.ifce.Write(data); err != nil {
		return fmt.Errorf("%w: write tap %q: %s", ErrTransport, t.name, err)
	}

	return nil
}
