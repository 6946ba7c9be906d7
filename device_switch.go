package blair

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"blair/config"

	log "github.com/sirupsen/logrus"
)

// Stats are switch wide frame counters.
type Stats struct {
	Received uint64
	Dropped  uint64
	Flooded  uint64
	Unicast  uint64
}

// Switch owns the ports, the FIB and the mirror registry, and runs one worker per
// port.
type Switch struct {
	factory        TransportFactory
	receiveTimeout time.Duration
	idleDelay      time.Duration

	// mu serializes port creation and worker start; the data path never takes it.
	mu     sync.Mutex
	ports  atomic.Pointer[[]*Port]
	byName sync.Map
	runCtx context.Context
	wg     sync.WaitGroup

	fib     *FIB
	mirrors *Mirrors

	received atomic.Uint64
	dropped  atomic.Uint64
	flooded  atomic.Uint64
	unicast  atomic.Uint64
}

func New(opts ...Option) (*Switch, error) {
	s := &Switch{
		factory:        DefaultTransportFactory,
		receiveTimeout: DefaultReceiveTimeout,
		idleDelay:      DefaultIdleDelay,
		fib:            NewFIB(),
		mirrors:        NewMirrors(),
	}

	empty := []*Port{}
	s.ports.Store(&empty)

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Switch) FIB() *FIB {
	return s.fib
}

func (s *Switch) Mirrors() *Mirrors {
	return s.mirrors
}

// Ports returns every port sorted by name.
func (s *Switch) Ports() []*Port {
	return *s.ports.Load()
}

// Port returns the named port.
func (s *Switch) Port(name string) (*Port, error) {
	if p, ok := s.byName.Load(name); ok {
		return p.(*Port), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrPortNotFound, name)
}

func (s *Switch) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Dropped:  s.dropped.Load(),
		Flooded:  s.flooded.Load(),
		Unicast:  s.unicast.Load(),
	}
}

// AddInterface creates a transport of kind for the named interface with the switch's
// transport factory and adds it as a port.
func (s *Switch) AddInterface(kind, name string) (*Port, error) {
	if _, err := s.Port(name); err == nil {
		return nil, fmt.Errorf("%w: %q", ErrPortExists, name)
	}

	link, err := s.factory(kind, name, s.receiveTimeout)
	if err != nil {
		return nil, err
	}

	return s.addPort(name, kind, link)
}

// AddPort adds a port using link. The link is opened immediately; if that fails the
// port starts down. A port added while the switch runs gets its worker right away.
func (s *Switch) AddPort(name string, link Transport) (*Port, error) {
	kind := TransportPacket
	if _, ok := link.(*TapTransport); ok {
		kind = TransportTap
	}

	return s.addPort(name, kind, link)
}

func (s *Switch) addPort(name, kind string, link Transport) (*Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName.Load(name); ok {
		return nil, fmt.Errorf("%w: %q", ErrPortExists, name)
	}

	cur := *s.ports.Load()

	index := len(cur) + 1
	if i, ok := link.(Indexer); ok && i.Index() > 0 {
		index = i.Index()
	}

	p := newPort(name, kind, index, link)

	if err := link.Open(); err != nil {
		log.WithField("port", name).WithField("error", err).Error("failed opening port, leaving it down")
	} else {
		p.publish(p.State().withUp(true))
	}

	next := make([]*Port, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, p)

	sort.Slice(next, func(i, j int) bool {
		return next[i].name < next[j].name
	})

	s.byName.Store(name, p)
	s.ports.Store(&next)

	log.WithField("port", name).WithField("index", index).WithField("transport", kind).Info("added port")

	if s.runCtx != nil && s.runCtx.Err() == nil {
		s.startWorker(s.runCtx, p)
	}

	return p, nil
}

func (s *Switch) startWorker(ctx context.Context, p *Port) {
	withWaitGroup(&s.wg, func() {
		s.work(ctx, p)
	})
}

// Run starts a worker per port and blocks until ctx is done and every worker has
// returned. Transports are closed on the way out.
func (s *Switch) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return errors.New("switch is already running")
	}

	s.runCtx = ctx

	for _, p := range s.Ports() {
		s.startWorker(ctx, p)
	}
	s.mu.Unlock()

	log.WithField("ports", len(s.Ports())).Info("switch running")

	<-ctx.Done()
	s.wg.Wait()

	var errs []error

	for _, p := range s.Ports() {
		if err := p.link.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	log.Info("switch stopped")

	return errors.Join(errs...)
}

// forward runs the forwarding decision for a frame received on in.
func (s *Switch) forward(in *Port, f *Frame) {
	entry, level := in.logger()

	if !ingress(in.State().Mode, f) {
		s.dropped.Add(1)
		entry.WithField("frame", f.String()).Log(level, "dropped frame at ingress")

		return
	}

	vlan := f.VLAN()

	if s.fib.Learn(vlan, f.Src, in) {
		entry.WithField("mac", f.Src.String()).WithField("vlan", vlan).Log(level, "learned mac address")
	}

	if !f.IsBroadcast() {
		if dst, ok := s.fib.Lookup(vlan, f.Dst); ok {
			if dst == in {
				s.dropped.Add(1)
				entry.WithField("mac", f.Dst.String()).WithField("vlan", vlan).Log(level, "filtered frame for own port")

				return
			}

			if state := dst.State(); state.Eligible(vlan) {
				s.unicast.Add(1)
				entry.WithField("to", dst.name).WithField("vlan", vlan).Log(level, "unicast frame")
				s.transmit(dst, state, f)

				return
			}
		}
	}

	s.flooded.Add(1)
	entry.WithField("vlan", vlan).Log(level, "flooding frame")
	s.flood(in, vlan, f)
}

func (s *Switch) flood(in *Port, vlan uint16, f *Frame) {
	for _, p := range s.Ports() {
		if p == in {
			continue
		}

		state := p.State()
		if !state.Eligible(vlan) {
			continue
		}

		s.transmit(p, state, f.Clone())
	}
}

// transmit applies the egress policy of state, the snapshot out was found eligible
// with, to f, which it takes ownership of. It sends f and copies the sent bytes to
// out's monitors.
func (s *Switch) transmit(out *Port, state *PortState, f *Frame) {
	if !egress(state.Mode, f) {
		return
	}

	data := f.Bytes()

	if err := out.link.Send(data); err != nil {
		log.WithField("port", out.name).WithField("error", err).Error("failed sending frame")
		return
	}

	out.countOut(len(data))
	s.mirror(out, data)
}

func (s *Switch) mirror(target *Port, data []byte) {
	for _, m := range s.mirrors.Get(target.name) {
		if !m.State().Up {
			continue
		}

		if err := m.link.Send(data); err != nil {
			log.WithField("port", m.name).WithField("target", target.name).WithField("error", err).Error("failed mirroring frame")
			continue
		}

		m.countOut(len(data))
	}
}

// RunningConfig renders the published state of every port as a config document.
func (s *Switch) RunningConfig() *config.Config {
	c := &config.Config{}

	for _, p := range s.Ports() {
		c.Ports = append(c.Ports, portConfig(p))
	}

	return c
}

func portConfig(p *Port) config.Port {
	state := p.State()
	pc := config.Port{
		Name:      p.name,
		Transport: p.kind,
		Shutdown:  !state.Up,
		Debug:     p.Debug(),
	}

	switch m := state.Mode.(type) {
	case AccessMode:
		pc.Mode = config.ModeAccess
		pc.Vlan = int(m.Vlan)
	case TrunkMode:
		pc.Mode = config.ModeTrunk
		for _, v := range m.Vlans.Slice() {
			pc.Vlans = append(pc.Vlans, int(v))
		}
	case MonitorMode:
		pc.Mode = config.ModeMonitor
		pc.Monitor = m.Target
	}

	return pc.Normalize()
}

// ApplyConfig brings ports in line with c. Missing ports are created; ports whose
// configuration differs get the commands that turn the running state into the wanted
// one queued. Ports absent from c are left alone.
func (s *Switch) ApplyConfig(c *config.Config) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrConfig, err)
	}

	for _, raw := range c.Ports {
		if _, err := s.Port(raw.Name); err == nil {
			continue
		}

		if _, err := s.AddInterface(raw.Normalize().Transport, raw.Name); err != nil {
			return err
		}
	}

	for _, raw := range c.Ports {
		want := raw.Normalize()

		p, err := s.Port(want.Name)
		if err != nil {
			return err
		}

		have := portConfig(p)
		if config.PortEqual(have, want) {
			continue
		}

		log.WithField("port", p.name).Info("applying configuration")

		p.SetDebug(want.Debug)

		for _, cmd := range configCommands(have, want) {
			p.Send(cmd)
		}
	}

	return nil
}

func configCommands(have, want config.Port) []Command {
	var cmds []Command

	if want.Mode != have.Mode || want.Vlan != have.Vlan || want.Monitor != have.Monitor ||
		!NewVlanSet(toVlans(want.Vlans)...).Equal(NewVlanSet(toVlans(have.Vlans)...)) {
		switch want.Mode {
		case config.ModeAccess:
			cmds = append(cmds, PortAccessVlan{Vlan: uint16(want.Vlan)})
		case config.ModeTrunk:
			cmds = append(cmds, PortModeTrunk{})
			if len(want.Vlans) > 0 {
				cmds = append(cmds, PortTrunkAddVlans{Vlans: toVlans(want.Vlans)})
			}
		case config.ModeMonitor:
			cmds = append(cmds, PortModeMonitoring{Target: want.Monitor})
		}
	}

	if want.Shutdown != have.Shutdown {
		if want.Shutdown {
			cmds = append(cmds, Shutdown{})
		} else {
			cmds = append(cmds, NoShutdown{})
		}
	}

	return cmds
}

func toVlans(in []int) []uint16 {
	out := make([]uint16, 0, len(in))
	for _, v := range in {
		out = append(out, uint16(v))
	}

	return out
}
