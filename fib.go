package blair

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type fibKey struct {
	vlan uint16
	mac  MAC
}

func (k fibKey) hash() uint32 {
	// FNV-1a
	h := uint32(2166136261)
	h = (h ^ uint32(k.vlan>>8)) * 16777619
	h = (h ^ uint32(k.vlan&0xff)) * 16777619

	for _, b := range k.mac {
		h = (h ^ uint32(b)) * 16777619
	}

	return h
}

type fibShard struct {
	mu      sync.RWMutex
	entries map[fibKey]*Port
}

// ownerIndex is the reverse index of a single port: vlan -> set of macs.
type ownerIndex struct {
	mu    sync.Mutex
	vlans map[uint16]map[MAC]struct{}
}

func (o *ownerIndex) add(k fibKey) {
	o.mu.Lock()
	defer o.mu.Unlock()

	macs, ok := o.vlans[k.vlan]
	if !ok {
		macs = make(map[MAC]struct{})
		o.vlans[k.vlan] = macs
	}

	macs[k.mac] = struct{}{}
}

func (o *ownerIndex) remove(k fibKey) {
	o.mu.Lock()
	defer o.mu.Unlock()

	macs, ok := o.vlans[k.vlan]
	if !ok {
		return
	}

	delete(macs, k.mac)

	if len(macs) == 0 {
		delete(o.vlans, k.vlan)
	}
}

func (o *ownerIndex) keys(vlan uint16, all bool) []fibKey {
	o.mu.Lock()
	defer o.mu.Unlock()

	var keys []fibKey

	for v, macs := range o.vlans {
		if !all && v != vlan {
			continue
		}

		for mac := range macs {
			keys = append(keys, fibKey{vlan: v, mac: mac})
		}
	}

	return keys
}

// FIB is the learned (vlan, mac) -> port table. It is split in shards, each with its
// own lock; a forward entry and its reverse index record are always changed together
// while holding the forward entry's shard lock, shard before owner.
type FIB struct {
	shards []*fibShard
	owners sync.Map // port name -> *ownerIndex
}

// FIBEntry is one learned binding.
type FIBEntry struct {
	Vlan uint16
	MAC  MAC
	Port string
}

func (e FIBEntry) String() string {
	return fmt.Sprintf("(%d, %s) %s", e.Vlan, e.MAC, e.Port)
}

func NewFIB() *FIB {
	return newFIB(defaultShardCount)
}

func newFIB(shards int) *FIB {
	f := &FIB{shards: make([]*fibShard, shards)}
	for i := range f.shards {
		f.shards[i] = &fibShard{entries: make(map[fibKey]*Port)}
	}

	return f
}

func (f *FIB) shard(k fibKey) *fibShard {
	return f.shards[k.hash()%uint32(len(f.shards))]
}

func (f *FIB) owner(name string) *ownerIndex {
	if o, ok := f.owners.Load(name); ok {
		return o.(*ownerIndex)
	}

	o, _ := f.owners.LoadOrStore(name, &ownerIndex{vlans: make(map[uint16]map[MAC]struct{})})

	return o.(*ownerIndex)
}

// Learn binds (vlan, mac) to port. It returns true if the binding is new or moved
// from another port.
func (f *FIB) Learn(vlan uint16, mac MAC, port *Port) bool {
	k := fibKey{vlan: vlan, mac: mac}
	s := f.shard(k)

	s.mu.RLock()
	cur := s.entries[k]
	s.mu.RUnlock()

	if cur == port {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.entries[k]
	if had && prev == port {
		return false
	}

	s.entries[k] = port
	f.owner(port.name).add(k)

	if had {
		f.owner(prev.name).remove(k)
	}

	return true
}

// Lookup returns the port (vlan, mac) was last learned on.
func (f *FIB) Lookup(vlan uint16, mac MAC) (*Port, bool) {
	k := fibKey{vlan: vlan, mac: mac}
	s := f.shard(k)

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.entries[k]

	return p, ok
}

// Remove deletes a single binding.
func (f *FIB) Remove(vlan uint16, mac MAC) {
	k := fibKey{vlan: vlan, mac: mac}
	s := f.shard(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.entries[k]; ok {
		delete(s.entries, k)
		f.owner(p.name).remove(k)
	}
}

// RemovePortEntries deletes every binding owned by the named port and returns how
// many were removed.
func (f *FIB) RemovePortEntries(name string) int {
	return f.removeOwned(name, 0, true)
}

// RemovePortVlanEntries deletes the bindings the named port owns in vlan.
func (f *FIB) RemovePortVlanEntries(name string, vlan uint16) int {
	return f.removeOwned(name, vlan, false)
}

func (f *FIB) removeOwned(name string, vlan uint16, all bool) int {
	v, ok := f.owners.Load(name)
	if !ok {
		return 0
	}

	o := v.(*ownerIndex)
	removed := 0

	for _, k := range o.keys(vlan, all) {
		s := f.shard(k)

		s.mu.Lock()
		// the key may have moved to another port since the snapshot
		if p, ok := s.entries[k]; ok && p.name == name {
			delete(s.entries, k)
			removed++
		}
		o.remove(k)
		s.mu.Unlock()
	}

	return removed
}

// Len is the number of bindings.
func (f *FIB) Len() int {
	n := 0

	for _, s := range f.shards {
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}

	return n
}

// Entries returns a snapshot ordered by vlan, then mac.
func (f *FIB) Entries() []FIBEntry {
	var entries []FIBEntry

	for _, s := range f.shards {
		s.mu.RLock()
		for k, p := range s.entries {
			entries = append(entries, FIBEntry{Vlan: k.vlan, MAC: k.mac, Port: p.name})
		}
		s.mu.RUnlock()
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Vlan != entries[j].Vlan {
			return entries[i].Vlan < entries[j].Vlan
		}

		return bytes.Compare(entries[i].MAC[:], entries[j].MAC[:]) < 0
	})

	return entries
}

// PortEntries counts the bindings owned by the named port per the reverse index.
func (f *FIB) PortEntries(name string) int {
	v, ok := f.owners.Load(name)
	if !ok {
		return 0
	}

	return len(v.(*ownerIndex).keys(0, true))
}

func (f *FIB) String() string {
	var sb strings.Builder

	for _, e := range f.Entries() {
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}

	return sb.String()
}
