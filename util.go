package blair

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// withWaitGroup runs f on its own goroutine, tracked by wg.
func withWaitGroup(wg *sync.WaitGroup, f func()) {
	wg.Add(1)

	go func() {
		defer wg.Done()
		f()
	}()
}

// ParseVlanList parses a comma separated list of VLAN ids and inclusive ranges such
// as "10,20,30-32". Every id must be within [MinPortVlan, MaxPortVlan].
func ParseVlanList(s string) ([]uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty vlan list", ErrInvalidVlan)
	}

	var vlans []uint16

	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)

		lo, hi, isRange := strings.Cut(item, "-")
		if !isRange {
			hi = lo
		}

		first, err := ParseVlan(lo)
		if err != nil {
			return nil, err
		}

		last, err := ParseVlan(hi)
		if err != nil {
			return nil, err
		}

		if first > last {
			return nil, fmt.Errorf("%w: range %q is reversed", ErrInvalidVlan, item)
		}

		for v := int(first); v <= int(last); v++ {
			vlans = append(vlans, uint16(v))
		}
	}

	return vlans, nil
}

// ParseVlan parses a single VLAN id within [MinPortVlan, MaxPortVlan].
func ParseVlan(s string) (uint16, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidVlan, s)
	}

	if !ValidPortVlan(v) {
		return 0, fmt.Errorf("%w: %d is outside %d-%d", ErrInvalidVlan, v, MinPortVlan, MaxPortVlan)
	}

	return uint16(v), nil
}

// FormatVlanList renders ascending vlans, collapsing consecutive runs of three or
// more into ranges.
func FormatVlanList(vlans []uint16) string {
	var parts []string

	for i := 0; i < len(vlans); {
		j := i
		for j+1 < len(vlans) && vlans[j+1] == vlans[j]+1 {
			j++
		}

		switch {
		case j-i >= 2:
			parts = append(parts, fmt.Sprintf("%d-%d", vlans[i], vlans[j]))
		case j-i == 1:
			parts = append(parts, strconv.Itoa(int(vlans[i])), strconv.Itoa(int(vlans[j])))
		default:
			parts = append(parts, strconv.Itoa(int(vlans[i])))
		}

		i = j + 1
	}

	return strings.Join(parts, ",")
}

func htons(v uint16) uint16 {
	return v<<8 | v>>8
}
