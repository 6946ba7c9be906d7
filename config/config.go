// Package config reads, writes and watches the switch's YAML port configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"sort"

	"gopkg.in/yaml.v3"
)

// ErrInvalid is returned by Validate, and by Load for documents that fail it.
var ErrInvalid = errors.New("invalid config")

const (
	ModeAccess  = "access"
	ModeTrunk   = "trunk"
	ModeMonitor = "monitor"

	TransportPacket = "packet"
	TransportTap    = "tap"

	minVlan = 1
	maxVlan = 4095
)

// Config is the persisted configuration of every switch port.
type Config struct {
	Ports []Port `yaml:"ports"`
}

// Port is the configuration of a single interface. A zero Mode means access.
type Port struct {
	Name      string `yaml:"name"`
	Transport string `yaml:"transport,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
	Vlan      int    `yaml:"vlan,omitempty"`
	Vlans     []int  `yaml:"vlans,omitempty"`
	Monitor   string `yaml:"monitor,omitempty"`
	Shutdown  bool   `yaml:"shutdown,omitempty"`
	Debug     bool   `yaml:"debug,omitempty"`
}

// Normalize fills in defaults (packet transport, access mode on vlan 1, sorted trunk
// vlans) and clears the fields the port's mode does not use.
func (p Port) Normalize() Port {
	if p.Transport == "" {
		p.Transport = TransportPacket
	}

	if p.Mode == "" {
		p.Mode = ModeAccess
	}

	switch p.Mode {
	case ModeAccess:
		if p.Vlan == 0 {
			p.Vlan = minVlan
		}

		p.Vlans, p.Monitor = nil, ""
	case ModeTrunk:
		p.Vlan, p.Monitor = 0, ""
	case ModeMonitor:
		p.Vlan, p.Vlans = 0, nil
	}

	if len(p.Vlans) > 0 {
		p.Vlans = slices.Clone(p.Vlans)
		sort.Ints(p.Vlans)
		p.Vlans = slices.Compact(p.Vlans)
	} else {
		p.Vlans = nil
	}

	return p
}

// Lookup returns the named port's configuration.
func (c *Config) Lookup(name string) (Port, bool) {
	for _, p := range c.Ports {
		if p.Name == name {
			return p, true
		}
	}

	return Port{}, false
}

// Validate checks names are unique and every mode is consistent with its fields.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Ports))

	for _, raw := range c.Ports {
		p := raw.Normalize()

		if p.Name == "" {
			return fmt.Errorf("%w: port without a name", ErrInvalid)
		}

		if seen[p.Name] {
			return fmt.Errorf("%w: port %q configured twice", ErrInvalid, p.Name)
		}

		seen[p.Name] = true

		if p.Transport != TransportPacket && p.Transport != TransportTap {
			return fmt.Errorf("%w: port %q has unknown transport %q", ErrInvalid, p.Name, p.Transport)
		}

		switch p.Mode {
		case ModeAccess:
			if p.Vlan < minVlan || p.Vlan > maxVlan {
				return fmt.Errorf("%w: port %q vlan %d is outside %d-%d", ErrInvalid, p.Name, p.Vlan, minVlan, maxVlan)
			}
		case ModeTrunk:
			for _, v := range p.Vlans {
				if v < minVlan || v > maxVlan {
					return fmt.Errorf("%w: port %q trunk vlan %d is outside %d-%d", ErrInvalid, p.Name, v, minVlan, maxVlan)
				}
			}
		case ModeMonitor:
			if p.Monitor == "" || p.Monitor == p.Name {
				return fmt.Errorf("%w: port %q needs a monitor target other than itself", ErrInvalid, p.Name)
			}
		default:
			return fmt.Errorf("%w: port %q has unknown mode %q", ErrInvalid, p.Name, p.Mode)
		}
	}

	for _, p := range c.Ports {
		if p.Mode == ModeMonitor && !seen[p.Monitor] {
			return fmt.Errorf("%w: port %q monitors unknown port %q", ErrInvalid, p.Name, p.Monitor)
		}
	}

	return nil
}

// Parse decodes and validates a YAML document.
func Parse(b []byte) (*Config, error) {
	c := &Config{}

	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	return Parse(b)
}

// Marshal encodes c as YAML with ports sorted by name.
func (c *Config) Marshal() ([]byte, error) {
	out := &Config{Ports: slices.Clone(c.Ports)}

	sort.Slice(out.Ports, func(i, j int) bool {
		return out.Ports[i].Name < out.Ports[j].Name
	})

	return yaml.Marshal(out)
}

// Save writes c to path.
func Save(path string, c *Config) error {
	b, err := c.Marshal()
	if err != nil {
		return err
	}

	return os.WriteFile(path, b, 0o644)
}

// Equal reports whether a and b configure the same ports the same way, ignoring
// order and defaulted fields.
func Equal(a, b *Config) bool {
	if len(a.Ports) != len(b.Ports) {
		return false
	}

	for _, pa := range a.Ports {
		pb, ok := b.Lookup(pa.Name)
		if !ok {
			return false
		}

		if !PortEqual(pa, pb) {
			return false
		}
	}

	return true
}

// PortEqual compares two port configurations after normalizing both.
func PortEqual(a, b Port) bool {
	return reflect.DeepEqual(a.Normalize(), b.Normalize())
}
