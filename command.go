package blair

import (
	"fmt"
	"sync"
)

// Command is a reconfiguration request for a single port. Commands are queued on the
// port and applied by its worker, in order, at the top of the worker loop.
type Command interface {
	fmt.Stringer

	command()
}

// Shutdown closes the port's transport and purges its FIB entries.
type Shutdown struct{}

// NoShutdown reopens the port's transport.
type NoShutdown struct{}

// PortModeAccess resets the port to access mode on the default VLAN.
type PortModeAccess struct{}

// PortAccessVlan sets the access VLAN.
type PortAccessVlan struct {
	Vlan uint16
}

// PortModeTrunk switches the port to a trunk with an empty allow-set.
type PortModeTrunk struct{}

type PortTrunkAddVlans struct {
	Vlans []uint16
}

type PortTrunkRemoveVlans struct {
	Vlans []uint16
}

// PortModeMonitoring makes the port a mirror of Target.
type PortModeMonitoring struct {
	Target string
}

func (Shutdown) command()             {}
func (NoShutdown) command()           {}
func (PortModeAccess) command()       {}
func (PortAccessVlan) command()       {}
func (PortModeTrunk) command()        {}
func (PortTrunkAddVlans) command()    {}
func (PortTrunkRemoveVlans) command() {}
func (PortModeMonitoring) command()   {}

func (Shutdown) String() string       { return "shutdown" }
func (NoShutdown) String() string     { return "no shutdown" }
func (PortModeAccess) String() string { return "switchport mode access" }
func (PortModeTrunk) String() string  { return "switchport mode trunk" }

func (c PortAccessVlan) String() string {
	return fmt.Sprintf("switchport access vlan %d", c.Vlan)
}

func (c PortTrunkAddVlans) String() string {
	return fmt.Sprintf("switchport trunk vlans add %s", FormatVlanList(c.Vlans))
}

func (c PortTrunkRemoveVlans) String() string {
	return fmt.Sprintf("switchport trunk vlans remove %s", FormatVlanList(c.Vlans))
}

func (c PortModeMonitoring) String() string {
	return fmt.Sprintf("switchport mode monitor %s", c.Target)
}

// commandQueue is an unbounded FIFO with many producers and a single consumer.
type commandQueue struct {
	mu      sync.Mutex
	pending []Command
}

func (q *commandQueue) push(cmd Command) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, cmd)
}

// drain takes every queued command without blocking.
func (q *commandQueue) drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()

	cmds := q.pending
	q.pending = nil

	return cmds
}

func (q *commandQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}
