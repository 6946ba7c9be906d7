package blair

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrMemSendFailed is returned by a MemTransport whose sends were made to fail.
	ErrMemSendFailed = errors.New("mem transport send failed")
	// ErrMemOpenFailed is returned by a MemTransport whose opens were made to fail.
	ErrMemOpenFailed = errors.New("mem transport open failed")
)

// MemTransport is an in-memory interface. Frames sent on it are recorded and, when
// it is one end of a pair, delivered to the peer's receive queue.
type MemTransport struct {
	name    string
	index   int
	timeout time.Duration

	up        atomic.Bool
	failSends atomic.Bool
	failOpens atomic.Bool
	peer      *MemTransport

	mu      sync.Mutex
	inbound [][]byte
	sent    [][]byte
	notify  chan struct{}
}

var memIndex atomic.Int64

// NewMemTransport returns an unconnected, closed in-memory interface.
func NewMemTransport(name string) *MemTransport {
	return &MemTransport{
		name:    name,
		index:   int(memIndex.Add(1)),
		timeout: DefaultReceiveTimeout,
		notify:  make(chan struct{}, 1),
	}
}

// NewMemPair returns two in-memory interfaces wired back to back, like the two ends
// of a veth pair.
func NewMemPair(a, b string) (*MemTransport, *MemTransport) {
	ta, tb := NewMemTransport(a), NewMemTransport(b)
	ta.peer, tb.peer = tb, ta

	return ta, tb
}

func (t *MemTransport) Name() string {
	return t.name
}

func (t *MemTransport) Index() int {
	return t.index
}

func (t *MemTransport) Open() error {
	if t.failOpens.Load() {
		return ErrMemOpenFailed
	}

	t.up.Store(true)
	return nil
}

func (t *MemTransport) Close() error {
	t.up.Store(false)
	return nil
}

func (t *MemTransport) IsUp() bool {
	return t.up.Load()
}

// SetTimeout sets how long Receive waits for a frame.
func (t *MemTransport) SetTimeout(timeout time.Duration) {
	t.timeout = timeout
}

// FailSends makes every following Send fail while fail is set.
func (t *MemTransport) FailSends(fail bool) {
	t.failSends.Store(fail)
}

// FailOpens makes every following Open fail while fail is set.
func (t *MemTransport) FailOpens(fail bool) {
	t.failOpens.Store(fail)
}

// Inject queues data as if it had arrived on the wire.
func (t *MemTransport) Inject(data []byte) {
	t.mu.Lock()
	t.inbound = append(t.inbound, append([]byte(nil), data...))
	t.mu.Unlock()

	select {
	case t.notify <- struct{}{}:
	default:
	}
}

func (t *MemTransport) Receive() (*RawFrame, error) {
	if !t.IsUp() {
		return nil, ErrPortDown
	}

	if data := t.pop(); data != nil {
		return &RawFrame{Data: data}, nil
	}

	timer := time.NewTimer(t.timeout)
	defer timer.Stop()

	select {
	case <-t.notify:
		if data := t.pop(); data != nil {
			return &RawFrame{Data: data}, nil
		}
	case <-timer.C:
	}

	return nil, nil
}

func (t *MemTransport) pop() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.inbound) == 0 {
		return nil
	}

	data := t.inbound[0]
	t.inbound = t.inbound[1:]

	return data
}

func (t *MemTransport) Send(data []byte) error {
	if !t.IsUp() {
		return ErrPortDown
	}

	if t.failSends.Load() {
		return ErrMemSendFailed
	}

	t.mu.Lock()
	t.sent = append(t.sent, append([]byte(nil), data...))
	t.mu.Unlock()

	if t.peer != nil {
		t.peer.Inject(data)
	}

	return nil
}

// Sent returns a copy of every frame sent so far.
func (t *MemTransport) Sent() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, len(t.sent))
	copy(out, t.sent)

	return out
}

// Reset forgets all sent frames.
func (t *MemTransport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sent = nil
}
