package blair

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testSwitch struct {
	*Switch
	links map[string]*MemTransport
}

func newTestSwitch(t *testing.T, names ...string) *testSwitch {
	t.Helper()

	sw, err := New(
		WithReceiveTimeout(10*time.Millisecond),
		WithIdleDelay(10*time.Millisecond),
	)
	require.NoError(t, err)

	ts := &testSwitch{Switch: sw, links: make(map[string]*MemTransport)}

	for _, name := range names {
		link := NewMemTransport(name)
		link.SetTimeout(10 * time.Millisecond)

		_, err = sw.AddPort(name, link)
		require.NoError(t, err)

		ts.links[name] = link
	}

	return ts
}

func (ts *testSwitch) port(t *testing.T, name string) *Port {
	t.Helper()

	p, err := ts.Port(name)
	require.NoError(t, err)

	return p
}

// configure applies cmds on name synchronously, like its worker would.
func (ts *testSwitch) configure(t *testing.T, name string, cmds ...Command) {
	t.Helper()

	p := ts.port(t, name)
	for _, cmd := range cmds {
		ts.apply(p, cmd)
	}
}

// receive runs the forwarding decision for raw as if it arrived on name.
func (ts *testSwitch) receive(t *testing.T, name string, raw []byte) {
	t.Helper()

	f, err := ParseFrame(raw, nil)
	require.NoError(t, err)

	ts.forward(ts.port(t, name), f)
}

func (ts *testSwitch) sent(name string) [][]byte {
	return ts.links[name].Sent()
}

func frameBytes(t *testing.T, dst, src MAC, vlan uint16, payload string) []byte {
	t.Helper()

	f := &Frame{Dst: dst, Src: src, EtherType: EtherTypeIPv4, Payload: []byte(payload)}
	if vlan != 0 {
		require.NoError(t, f.SetTag(vlan))
	}

	return f.Bytes()
}

func TestAddPort(t *testing.T) {
	ts := newTestSwitch(t, "b", "a")

	_, err := ts.AddPort("a", NewMemTransport("a"))
	assert.True(t, errors.Is(err, ErrPortExists))

	_, err = ts.Port("zz")
	assert.True(t, errors.Is(err, ErrPortNotFound))

	ports := ts.Ports()
	require.Len(t, ports, 2)
	assert.Equal(t, "a", ports[0].Name())
	assert.Equal(t, "b", ports[1].Name())

	state := ports[0].State()
	assert.True(t, state.Up)
	assert.Equal(t, AccessMode{Vlan: 1}, state.Mode)
}

func TestAccessVlansIsolateBroadcastAndUnicastReply(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "c")

	ts.configure(t, "a", PortAccessVlan{Vlan: 10})
	ts.configure(t, "b", PortAccessVlan{Vlan: 10})
	ts.configure(t, "c", PortAccessVlan{Vlan: 20})

	broadcast := frameBytes(t, BroadcastMAC, mac1, 0, "who")
	ts.receive(t, "a", broadcast)

	assert.Equal(t, [][]byte{broadcast}, ts.sent("b"))
	assert.Empty(t, ts.sent("c"))
	assert.Empty(t, ts.sent("a"))

	reply := frameBytes(t, mac1, mac2, 0, "me")
	ts.receive(t, "b", reply)

	assert.Equal(t, [][]byte{reply}, ts.sent("a"))
	assert.Len(t, ts.sent("b"), 1)
	assert.Empty(t, ts.sent("c"))

	p, ok := ts.FIB().Lookup(10, mac1)
	require.True(t, ok)
	assert.Equal(t, "a", p.Name())

	stats := ts.Stats()
	assert.Equal(t, uint64(1), stats.Flooded)
	assert.Equal(t, uint64(1), stats.Unicast)
}

func TestBroadcastIsAlwaysFlooded(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "c")

	// even when the broadcast address has somehow been learned
	ts.FIB().Learn(1, BroadcastMAC, ts.port(t, "b"))

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "all"))

	assert.Len(t, ts.sent("b"), 1)
	assert.Len(t, ts.sent("c"), 1)
}

func TestUnknownUnicastIsFlooded(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "c")

	ts.receive(t, "a", frameBytes(t, mac3, mac1, 0, "?"))

	assert.Len(t, ts.sent("b"), 1)
	assert.Len(t, ts.sent("c"), 1)
}

func TestUnicastToIngressPortIsFiltered(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac2, 0, "hi"))
	ts.links["b"].Reset()

	ts.receive(t, "a", frameBytes(t, mac2, mac1, 0, "local"))

	assert.Empty(t, ts.sent("a"))
	assert.Empty(t, ts.sent("b"))
	assert.Equal(t, uint64(1), ts.Stats().Dropped)
}

func TestUnicastToIneligibleOwnerFloods(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "c")

	ts.receive(t, "b", frameBytes(t, BroadcastMAC, mac2, 0, "hi"))
	ts.links["c"].Reset()
	ts.configure(t, "b", Shutdown{})

	// shutting b down purged its entries
	_, ok := ts.FIB().Lookup(1, mac2)
	assert.False(t, ok)

	ts.FIB().Learn(1, mac2, ts.port(t, "b"))
	ts.receive(t, "a", frameBytes(t, mac2, mac1, 0, "to b"))

	assert.Len(t, ts.sent("c"), 1)
	assert.Len(t, ts.sent("b"), 0)
}

func TestTransmitUsesEligibleSnapshot(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	b := ts.port(t, "b")
	snapshot := b.State().with(AccessMode{Vlan: 10})

	// b moved to trunk after it was found eligible as access 10
	ts.configure(t, "b", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10}})

	f, err := ParseFrame(frameBytes(t, BroadcastMAC, mac1, 10, "hi"), nil)
	require.NoError(t, err)

	ts.transmit(b, snapshot, f)

	assert.Equal(t, [][]byte{frameBytes(t, BroadcastMAC, mac1, 0, "hi")}, ts.sent("b"))
}

func TestFloodDuringReconfigurationKeepsVlanIsolation(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.configure(t, "a", PortAccessVlan{Vlan: 10})
	ts.configure(t, "b", PortAccessVlan{Vlan: 10})

	b := ts.port(t, "b")
	access := b.State()
	trunk := access.with(TrunkMode{})

	done := make(chan struct{})
	flipped := make(chan struct{})

	go func() {
		defer close(flipped)

		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}

			if i%2 == 0 {
				b.publish(trunk)
			} else {
				b.publish(access)
			}
		}
	}()

	for i := 0; i < 2000; i++ {
		ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "hi"))
	}

	close(done)
	<-flipped

	for _, raw := range ts.sent("b") {
		f, err := ParseFrame(raw, nil)
		require.NoError(t, err)
		assert.False(t, f.IsTagged(), "access port sent %s", f)
	}
}

func TestMonitorReceivesEgressOfTarget(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "d")

	ts.configure(t, "d", PortModeMonitoring{Target: "a"})

	toA := frameBytes(t, BroadcastMAC, mac2, 0, "to a")
	ts.receive(t, "b", toA)

	assert.Equal(t, [][]byte{toA}, ts.sent("a"))
	assert.Equal(t, [][]byte{toA}, ts.sent("d"))

	// traffic received on a is not mirrored, and d is never a flood target
	ts.receive(t, "a", frameBytes(t, mac2, mac1, 0, "from a"))

	assert.Len(t, ts.sent("b"), 1)
	assert.Len(t, ts.sent("d"), 1)

	assert.Equal(t, []*Port{ts.port(t, "d")}, ts.Mirrors().Get("a"))

	ts.configure(t, "d", PortModeAccess{})
	assert.Empty(t, ts.Mirrors().Get("a"))
}

func TestMirrorCopiesEgressProcessedBytes(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "d")

	ts.configure(t, "a", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{1}})
	ts.configure(t, "d", PortModeMonitoring{Target: "a"})

	ts.receive(t, "b", frameBytes(t, BroadcastMAC, mac2, 0, "x"))

	tagged := frameBytes(t, BroadcastMAC, mac2, 1, "x")
	assert.Equal(t, [][]byte{tagged}, ts.sent("a"))
	assert.Equal(t, [][]byte{tagged}, ts.sent("d"))
}

func TestTrunkRemoveVlanPurgesOnlyThatVlan(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.configure(t, "a", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10, 20}})
	ts.configure(t, "b", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10, 20}})

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 10, "v10"))
	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac2, 20, "v20"))

	require.Len(t, ts.sent("b"), 2)

	ts.configure(t, "a", PortTrunkRemoveVlans{Vlans: []uint16{10}})

	_, ok := ts.FIB().Lookup(10, mac1)
	assert.False(t, ok)

	p, ok := ts.FIB().Lookup(20, mac2)
	require.True(t, ok)
	assert.Equal(t, "a", p.Name())

	assert.Equal(t, TrunkMode{Vlans: NewVlanSet(20)}, ts.port(t, "a").State().Mode)
}

func TestTrunkIngressAcceptsVlanOnceAllowed(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.configure(t, "a", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{20}})
	ts.configure(t, "b", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10, 20}})

	v10 := frameBytes(t, BroadcastMAC, mac1, 10, "v10")

	ts.receive(t, "a", v10)
	assert.Empty(t, ts.sent("b"))

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "untagged"))
	assert.Empty(t, ts.sent("b"))

	ts.configure(t, "a", PortTrunkAddVlans{Vlans: []uint16{10}})
	ts.receive(t, "a", v10)
	assert.Equal(t, [][]byte{v10}, ts.sent("b"))
}

func TestAccessToTrunkTagsAndBack(t *testing.T) {
	ts := newTestSwitch(t, "access", "trunk")

	ts.configure(t, "access", PortAccessVlan{Vlan: 10})
	ts.configure(t, "trunk", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10}})

	plain := frameBytes(t, BroadcastMAC, mac1, 0, "up")
	ts.receive(t, "access", plain)
	assert.Equal(t, [][]byte{frameBytes(t, BroadcastMAC, mac1, 10, "up")}, ts.sent("trunk"))

	ts.receive(t, "trunk", frameBytes(t, mac1, mac2, 10, "down"))
	assert.Equal(t, [][]byte{frameBytes(t, mac1, mac2, 0, "down")}, ts.sent("access"))
}

func TestSendFailureDoesNotStopFlood(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "c")

	ts.links["b"].FailSends(true)
	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "x"))

	assert.Empty(t, ts.sent("b"))
	assert.Len(t, ts.sent("c"), 1)
	assert.Equal(t, uint64(0), ts.port(t, "b").Counters().OutPackets)
	assert.Equal(t, uint64(1), ts.port(t, "c").Counters().OutPackets)
}

func TestNoShutdownFailureLeavesPortDown(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.configure(t, "b", Shutdown{})
	ts.links["b"].FailOpens(true)
	ts.configure(t, "b", NoShutdown{})

	assert.False(t, ts.port(t, "b").State().Up)
	assert.False(t, ts.links["b"].IsUp())

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "hi"))
	assert.Empty(t, ts.sent("b"))

	ts.links["b"].FailOpens(false)
	ts.configure(t, "b", NoShutdown{})

	assert.True(t, ts.port(t, "b").State().Up)
}

func TestMirrorSendFailureDoesNotStopDelivery(t *testing.T) {
	ts := newTestSwitch(t, "a", "b", "d", "e")

	ts.configure(t, "d", PortModeMonitoring{Target: "a"})
	ts.configure(t, "e", PortModeMonitoring{Target: "a"})
	ts.links["d"].FailSends(true)

	toA := frameBytes(t, BroadcastMAC, mac2, 0, "to a")
	ts.receive(t, "b", toA)

	assert.Equal(t, [][]byte{toA}, ts.sent("a"))
	assert.Empty(t, ts.sent("d"))
	assert.Equal(t, [][]byte{toA}, ts.sent("e"))
	assert.Equal(t, uint64(0), ts.port(t, "d").Counters().OutPackets)
	assert.Equal(t, uint64(1), ts.port(t, "e").Counters().OutPackets)
}

func TestCommandsRejectedOutsideTheirMode(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ts.configure(t, "a", PortTrunkAddVlans{Vlans: []uint16{10}})
	assert.Equal(t, AccessMode{Vlan: 1}, ts.port(t, "a").State().Mode)

	ts.configure(t, "a", PortTrunkRemoveVlans{Vlans: []uint16{1}})
	assert.Equal(t, AccessMode{Vlan: 1}, ts.port(t, "a").State().Mode)

	ts.configure(t, "a", PortModeMonitoring{Target: "a"})
	ts.configure(t, "a", PortModeMonitoring{Target: "nope"})
	assert.Equal(t, AccessMode{Vlan: 1}, ts.port(t, "a").State().Mode)

	ts.configure(t, "a", PortAccessVlan{Vlan: 0})
	assert.Equal(t, AccessMode{Vlan: 1}, ts.port(t, "a").State().Mode)
}

func TestModeChangePurgesFIB(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	for _, cmd := range []Command{PortModeAccess{}, PortAccessVlan{Vlan: 1}, PortModeTrunk{}, PortModeMonitoring{Target: "b"}} {
		ts.configure(t, "a", PortModeAccess{})
		ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "x"))
		require.Equal(t, 1, ts.FIB().PortEntries("a"))

		ts.configure(t, "a", cmd)
		assert.Equal(t, 0, ts.FIB().PortEntries("a"), cmd.String())
	}
}

func TestDebugPortLogsDecisions(t *testing.T) {
	out := log.StandardLogger().Out
	buff := &bytes.Buffer{}
	log.SetOutput(buff)
	defer log.SetOutput(out)

	ts := newTestSwitch(t, "a", "b")
	ts.port(t, "a").SetDebug(true)

	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 0, "x"))
	ts.receive(t, "a", frameBytes(t, BroadcastMAC, mac1, 10, "tagged"))

	assert.Contains(t, buff.String(), "learned mac address")
	assert.Contains(t, buff.String(), "flooding frame")
	assert.Contains(t, buff.String(), "dropped frame at ingress")
}

func TestPortString(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")
	p := ts.port(t, "a")

	ts.configure(t, "a", PortModeTrunk{}, PortTrunkAddVlans{Vlans: []uint16{10, 11, 12}})
	p.countIn(64)

	out := p.String()
	assert.Contains(t, out, "a (index")
	assert.Contains(t, out, "is up")
	assert.Contains(t, out, "mode: trunk vlans 10-12")
	assert.Contains(t, out, "debug: off")
	assert.Contains(t, out, "rx: 1 packets, 64 bytes")

	p.ResetCounters()
	assert.Equal(t, Counters{}, p.Counters())
}

func TestRunForwardsAndAppliesCommands(t *testing.T) {
	ts := newTestSwitch(t, "a", "b")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)

	go func() {
		done <- ts.Run(ctx)
	}()

	broadcast := frameBytes(t, BroadcastMAC, mac1, 0, "hi")
	ts.links["a"].Inject(broadcast)

	assert.Eventually(t, func() bool {
		return len(ts.sent("b")) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return ts.port(t, "a").Counters().InPackets == 1
	}, time.Second, 5*time.Millisecond)

	a := ts.port(t, "a")
	a.Send(Shutdown{})

	assert.Eventually(t, func() bool {
		return !a.State().Up && !ts.links["a"].IsUp()
	}, time.Second, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return ts.FIB().PortEntries("a") == 0
	}, time.Second, 5*time.Millisecond)

	a.Send(NoShutdown{})
	a.Send(PortAccessVlan{Vlan: 10})

	assert.Eventually(t, func() bool {
		s := a.State()
		return s.Up && s.Mode == PortMode(AccessMode{Vlan: 10})
	}, time.Second, 5*time.Millisecond)

	// a short frame is dropped without stopping the worker
	ts.links["b"].Inject(make([]byte, 10))
	ts.links["b"].Inject(frameBytes(t, BroadcastMAC, mac2, 0, "still here"))

	assert.Eventually(t, func() bool {
		_, ok := ts.FIB().Lookup(1, mac2)
		return ok
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("switch did not stop")
	}

	assert.False(t, ts.links["b"].IsUp())
}

func TestPortAddedWhileRunningGetsWorker(t *testing.T) {
	ts := newTestSwitch(t, "a")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = ts.Run(ctx)
	}()

	// let Run start before adding
	assert.Eventually(t, func() bool {
		ts.mu.Lock()
		defer ts.mu.Unlock()

		return ts.runCtx != nil
	}, time.Second, 5*time.Millisecond)

	link := NewMemTransport("late")
	link.SetTimeout(10 * time.Millisecond)

	_, err := ts.AddPort("late", link)
	require.NoError(t, err)

	link.Inject(frameBytes(t, BroadcastMAC, mac3, 0, "late"))

	assert.Eventually(t, func() bool {
		return len(ts.sent("a")) == 1
	}, time.Second, 5*time.Millisecond)
}
