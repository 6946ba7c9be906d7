package blair

import (
	"fmt"
	"strings"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Counters are the traffic counters of a port.
type Counters struct {
	InPackets  uint64
	InBytes    uint64
	OutPackets uint64
	OutBytes   uint64
}

// Port is one switch interface. Its PortState is written only by the port's worker
// and read lock-free by every other worker and the shell.
type Port struct {
	name  string
	index int
	link  Transport
	kind  string

	state atomic.Pointer[PortState]
	cmds  commandQueue
	debug atomic.Bool

	inPackets  atomic.Uint64
	inBytes    atomic.Uint64
	outPackets atomic.Uint64
	outBytes   atomic.Uint64
}

func newPort(name, kind string, index int, link Transport) *Port {
	p := &Port{
		name:  name,
		kind:  kind,
		index: index,
		link:  link,
	}
	p.state.Store(DefaultPortState())

	return p
}

func (p *Port) Name() string {
	return p.name
}

func (p *Port) Index() int {
	return p.index
}

// Kind is the transport kind the port was created with, "packet" or "tap".
func (p *Port) Kind() string {
	return p.kind
}

// State returns the currently published state. The result must not be modified.
func (p *Port) State() *PortState {
	return p.state.Load()
}

func (p *Port) publish(s *PortState) {
	p.state.Store(s)
}

// Send queues cmd for the port's worker.
func (p *Port) Send(cmd Command) {
	log.WithField("port", p.name).WithField("command", cmd.String()).Debug("queued command")

	p.cmds.push(cmd)
}

// Pending returns the number of queued, not yet applied, commands.
func (p *Port) Pending() int {
	return p.cmds.len()
}

func (p *Port) SetDebug(debug bool) {
	p.debug.Store(debug)
}

func (p *Port) Debug() bool {
	return p.debug.Load()
}

func (p *Port) Counters() Counters {
	return Counters{
		InPackets:  p.inPackets.Load(),
		InBytes:    p.inBytes.Load(),
		OutPackets: p.outPackets.Load(),
		OutBytes:   p.outBytes.Load(),
	}
}

func (p *Port) ResetCounters() {
	p.inPackets.Store(0)
	p.inBytes.Store(0)
	p.outPackets.Store(0)
	p.outBytes.Store(0)
}

func (p *Port) countIn(n int) {
	p.inPackets.Add(1)
	p.inBytes.Add(uint64(n))
}

func (p *Port) countOut(n int) {
	p.outPackets.Add(1)
	p.outBytes.Add(uint64(n))
}

// logger returns an entry for per-frame messages. With debugging enabled on the port
// those messages are raised to info so they show at the default level.
func (p *Port) logger() (*log.Entry, log.Level) {
	entry := log.WithField("port", p.name)
	if p.Debug() {
		return entry, log.InfoLevel
	}

	return entry, log.TraceLevel
}

func (p *Port) String() string {
	state := p.State()
	counters := p.Counters()

	status := "down"
	if state.Up {
		status = "up"
	}

	debug := "off"
	if p.Debug() {
		debug = "on"
	}

	var sb strings.Builder

	fmt.Fprintf(&sb, "%s (index %d) is %s\n", p.name, p.index, status)
	fmt.Fprintf(&sb, "  mode: %s\n", state.Mode)
	fmt.Fprintf(&sb, "  debug: %s\n", debug)
	fmt.Fprintf(&sb, "  rx: %d packets, %d bytes\n", counters.InPackets, counters.InBytes)
	fmt.Fprintf(&sb, "  tx: %d packets, %d bytes", counters.OutPackets, counters.OutBytes)

	return sb.String()
}
