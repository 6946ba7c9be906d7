package blair

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMirrors(t *testing.T) {
	m := NewMirrors()
	d, e := testPort("d"), testPort("e")

	assert.Empty(t, m.Get("a"))

	m.Add("a", d)
	m.Add("a", e)
	m.Add("a", d)

	assert.Equal(t, []*Port{d, e}, m.Get("a"))

	snapshot := m.Get("a")
	m.Remove("a", d)

	assert.Equal(t, []*Port{e}, m.Get("a"))
	assert.Equal(t, []*Port{d, e}, snapshot)

	m.Remove("b", d)
	m.Add("b", d)

	targets, sessions := m.Sessions()
	assert.Equal(t, []string{"a", "b"}, targets)
	assert.Equal(t, map[string][]string{"a": {"e"}, "b": {"d"}}, sessions)

	m.Remove("a", e)

	targets, _ = m.Sessions()
	assert.Equal(t, []string{"b"}, targets)
}
