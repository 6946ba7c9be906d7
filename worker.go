package blair

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"
)

// work is the loop of a port's worker. It is the only writer of the port's state.
func (s *Switch) work(ctx context.Context, p *Port) {
	log.WithField("port", p.name).Debug("worker started")
	defer log.WithField("port", p.name).Debug("worker stopped")

	for {
		if ctx.Err() != nil {
			return
		}

		for _, cmd := range p.cmds.drain() {
			s.apply(p, cmd)
		}

		state := p.State()
		if !state.Up || state.IsMonitoring() {
			if !sleep(ctx, s.idleDelay) {
				return
			}

			continue
		}

		raw, err := p.link.Receive()
		if err != nil {
			log.WithField("port", p.name).WithField("error", err).Error("failed receiving frame")

			if !sleep(ctx, s.idleDelay) {
				return
			}

			continue
		}

		if raw == nil {
			continue
		}

		s.received.Add(1)
		p.countIn(len(raw.Data))

		f, err := ParseFrame(raw.Data, raw.Aux)
		if err != nil {
			s.dropped.Add(1)

			entry, level := p.logger()
			if level == log.TraceLevel {
				level = log.DebugLevel
			}

			entry.WithField("error", err).Log(level, "dropped malformed frame")

			continue
		}

		s.forward(p, f)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// apply executes a single command on p. It runs on p's worker.
func (s *Switch) apply(p *Port, cmd Command) {
	entry := log.WithField("port", p.name).WithField("command", cmd.String())
	state := p.State()

	switch c := cmd.(type) {
	case Shutdown:
		if err := p.link.Close(); err != nil {
			entry.WithField("error", err).Error("failed closing port")
		}

		p.publish(state.withUp(false))
		s.purge(p)
	case NoShutdown:
		if err := p.link.Open(); err != nil {
			entry.WithField("error", err).Error("failed opening port, leaving it down")
			return
		}

		p.publish(state.withUp(true))
	case PortModeAccess:
		s.leaveMonitor(p, state)
		p.publish(state.with(AccessMode{Vlan: DefaultVlan}))
		s.purge(p)
	case PortAccessVlan:
		if !ValidPortVlan(int(c.Vlan)) {
			entry.WithField("error", ErrInvalidVlan).Warn("rejected command")
			return
		}

		s.leaveMonitor(p, state)
		p.publish(state.with(AccessMode{Vlan: c.Vlan}))
		s.purge(p)
	case PortModeTrunk:
		s.leaveMonitor(p, state)
		p.publish(state.with(TrunkMode{}))
		s.purge(p)
	case PortTrunkAddVlans:
		m, ok := state.Mode.(TrunkMode)
		if !ok {
			entry.WithField("error", ErrNotTrunk).Warn("rejected command")
			return
		}

		if err := validVlans(c.Vlans); err != nil {
			entry.WithField("error", err).Warn("rejected command")
			return
		}

		p.publish(state.with(TrunkMode{Vlans: m.Vlans.Add(c.Vlans...)}))
	case PortTrunkRemoveVlans:
		m, ok := state.Mode.(TrunkMode)
		if !ok {
			entry.WithField("error", ErrNotTrunk).Warn("rejected command")
			return
		}

		vlans, removed := m.Vlans.Remove(c.Vlans...)
		p.publish(state.with(TrunkMode{Vlans: vlans}))

		for _, v := range removed {
			n := s.fib.RemovePortVlanEntries(p.name, v)
			entry.WithField("vlan", v).WithField("entries", n).Debug("purged fib entries")
		}
	case PortModeMonitoring:
		if err := s.validTarget(p, c.Target); err != nil {
			entry.WithField("error", err).Warn("rejected command")
			return
		}

		s.leaveMonitor(p, state)
		s.purge(p)
		p.publish(state.with(MonitorMode{Target: c.Target}))
		s.mirrors.Add(c.Target, p)
	default:
		entry.Warn("ignoring unknown command")
		return
	}

	entry.WithField("state", p.State().Mode.String()).WithField("up", p.State().Up).Info("applied command")
}

func (s *Switch) purge(p *Port) {
	n := s.fib.RemovePortEntries(p.name)
	log.WithField("port", p.name).WithField("entries", n).Debug("purged fib entries")
}

func (s *Switch) leaveMonitor(p *Port, state *PortState) {
	if m, ok := state.Mode.(MonitorMode); ok {
		s.mirrors.Remove(m.Target, p)
	}
}

func (s *Switch) validTarget(p *Port, target string) error {
	if target == p.name {
		return errors.New("a port cannot monitor itself")
	}

	_, err := s.Port(target)

	return err
}

func validVlans(vlans []uint16) error {
	for _, v := range vlans {
		if !ValidPortVlan(int(v)) {
			return ErrInvalidVlan
		}
	}

	return nil
}
