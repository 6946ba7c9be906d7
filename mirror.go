package blair

import (
	"slices"
	"sort"
	"sync"
	"sync/atomic"
)

type mirrorSession struct {
	mu       sync.Mutex
	monitors atomic.Pointer[[]*Port]
}

func (s *mirrorSession) load() []*Port {
	if p := s.monitors.Load(); p != nil {
		return *p
	}

	return nil
}

// Mirrors maps a monitored port name to the ports mirroring it. Readers on the data
// path load an immutable slice; writers replace it under the session's lock.
type Mirrors struct {
	sessions sync.Map // target name -> *mirrorSession
}

func NewMirrors() *Mirrors {
	return &Mirrors{}
}

func (m *Mirrors) session(target string) *mirrorSession {
	if s, ok := m.sessions.Load(target); ok {
		return s.(*mirrorSession)
	}

	s, _ := m.sessions.LoadOrStore(target, &mirrorSession{})

	return s.(*mirrorSession)
}

// Add registers monitor as a mirror of target. Adding the same monitor twice is a
// no-op.
func (m *Mirrors) Add(target string, monitor *Port) {
	s := m.session(target)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	if slices.Contains(cur, monitor) {
		return
	}

	next := append(slices.Clone(cur), monitor)
	s.monitors.Store(&next)
}

// Remove unregisters monitor from target's session.
func (m *Mirrors) Remove(target string, monitor *Port) {
	v, ok := m.sessions.Load(target)
	if !ok {
		return
	}

	s := v.(*mirrorSession)

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.load()
	i := slices.Index(cur, monitor)
	if i < 0 {
		return
	}

	next := slices.Delete(slices.Clone(cur), i, i+1)
	s.monitors.Store(&next)
}

// Get returns the ports mirroring target, in registration order. The slice must not
// be modified.
func (m *Mirrors) Get(target string) []*Port {
	v, ok := m.sessions.Load(target)
	if !ok {
		return nil
	}

	return v.(*mirrorSession).load()
}

// Sessions returns target name -> monitor names for every non-empty session, with
// targets sorted.
func (m *Mirrors) Sessions() ([]string, map[string][]string) {
	out := make(map[string][]string)

	m.sessions.Range(func(k, v any) bool {
		monitors := v.(*mirrorSession).load()
		if len(monitors) == 0 {
			return true
		}

		names := make([]string, 0, len(monitors))
		for _, p := range monitors {
			names = append(names, p.name)
		}

		out[k.(string)] = names

		return true
	})

	targets := make([]string, 0, len(out))
	for t := range out {
		targets = append(targets, t)
	}

	sort.Strings(targets)

	return targets, out
}
