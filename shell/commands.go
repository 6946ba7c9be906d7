package shell

import (
	"errors"
	"fmt"
	"strings"

	"blair"
	"blair/config"
)

type command struct {
	pattern     []string
	description string
	run         func(s *Shell, args map[string]string) error
}

func isPlaceholder(token string) bool {
	return strings.HasPrefix(token, "<") && strings.HasSuffix(token, ">")
}

func (c *command) matches(tokens []string) bool {
	if len(tokens) != len(c.pattern) {
		return false
	}

	for i, token := range tokens {
		if !isPlaceholder(c.pattern[i]) && token != c.pattern[i] {
			return false
		}
	}

	return true
}

func (c *command) args(tokens []string) map[string]string {
	args := make(map[string]string)

	for i, p := range c.pattern {
		if isPlaceholder(p) {
			args[strings.Trim(p, "<>")] = tokens[i]
		}
	}

	return args
}

func (c *command) String() string {
	return strings.Join(c.pattern, " ")
}

var generalCommands = []*command{
	{
		pattern:     []string{"show", "interfaces"},
		description: "Show all interfaces",
		run: func(s *Shell, _ map[string]string) error {
			s.printf("Interfaces:\n==========\n\n")

			for _, p := range s.sw.Ports() {
				s.printf("%s\n\n", p)
			}

			return nil
		},
	},
	{
		pattern:     []string{"show", "fib"},
		description: "Show learned FIB entries",
		run: func(s *Shell, _ map[string]string) error {
			s.printf("FIB:\n====\n%s", s.sw.FIB())
			s.printf("%d entries\n", s.sw.FIB().Len())

			return nil
		},
	},
	{
		pattern:     []string{"show", "config"},
		description: "Show the running configuration",
		run: func(s *Shell, _ map[string]string) error {
			b, err := s.sw.RunningConfig().Marshal()
			if err != nil {
				return err
			}

			s.printf("%s", b)

			return nil
		},
	},
	{
		pattern:     []string{"show", "mirrors"},
		description: "Show mirror sessions",
		run: func(s *Shell, _ map[string]string) error {
			targets, sessions := s.sw.Mirrors().Sessions()
			if len(targets) == 0 {
				s.printf("no mirror sessions\n")
				return nil
			}

			for _, target := range targets {
				s.printf("%s -> %s\n", target, strings.Join(sessions[target], ", "))
			}

			return nil
		},
	},
	{
		pattern:     []string{"interface", "<intf>"},
		description: "Enter configuration mode for <intf>",
		run: func(s *Shell, args map[string]string) error {
			p, err := s.sw.Port(args["intf"])
			if err != nil {
				return err
			}

			s.intf = p

			return nil
		},
	},
	{
		pattern:     []string{"debug"},
		description: "Enable debug logging on every interface",
		run: func(s *Shell, _ map[string]string) error {
			for _, p := range s.sw.Ports() {
				p.SetDebug(true)
			}

			return nil
		},
	},
	{
		pattern:     []string{"no", "debug"},
		description: "Disable debug logging on every interface",
		run: func(s *Shell, _ map[string]string) error {
			for _, p := range s.sw.Ports() {
				p.SetDebug(false)
			}

			return nil
		},
	},
	{
		pattern:     []string{"counters", "reset"},
		description: "Reset the counters of every interface",
		run: func(s *Shell, _ map[string]string) error {
			for _, p := range s.sw.Ports() {
				p.ResetCounters()
			}

			return nil
		},
	},
	{
		pattern:     []string{"config", "save", "<filename>"},
		description: "Save the running configuration to <filename>",
		run: func(s *Shell, args map[string]string) error {
			if err := config.Save(args["filename"], s.sw.RunningConfig()); err != nil {
				return err
			}

			s.printf("Config saved at %s\n", args["filename"])

			return nil
		},
	},
	{
		pattern:     []string{"config", "load", "<filename>"},
		description: "Apply the configuration stored at <filename>",
		run: func(s *Shell, args map[string]string) error {
			c, err := config.Load(args["filename"])
			if err != nil {
				return err
			}

			if err = s.sw.ApplyConfig(c); err != nil {
				return err
			}

			s.printf("Config loaded from %s\n", args["filename"])

			return nil
		},
	},
	{
		pattern:     []string{"help"},
		description: "Show available commands",
		run: func(s *Shell, _ map[string]string) error {
			s.help("")
			return nil
		},
	},
	{
		pattern:     []string{"exit"},
		description: "Exit and shut the switch down",
		run: func(*Shell, map[string]string) error {
			return ErrExit
		},
	},
}

var interfaceCommands = []*command{
	{
		pattern:     []string{"show"},
		description: "Show the interface",
		run: func(s *Shell, _ map[string]string) error {
			s.printf("%s\n", s.intf)
			return nil
		},
	},
	{
		pattern:     []string{"debug"},
		description: "Enable debug logging on the interface",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.SetDebug(true)
			return nil
		},
	},
	{
		pattern:     []string{"no", "debug"},
		description: "Disable debug logging on the interface",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.SetDebug(false)
			return nil
		},
	},
	{
		pattern:     []string{"shutdown"},
		description: "Shut the interface down, stopping all traffic",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.Send(blair.Shutdown{})
			return nil
		},
	},
	{
		pattern:     []string{"no", "shutdown"},
		description: "Bring the interface back up",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.Send(blair.NoShutdown{})
			return nil
		},
	},
	{
		pattern:     []string{"counters", "reset"},
		description: "Reset the interface counters",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.ResetCounters()
			return nil
		},
	},
	{
		pattern:     []string{"switchport", "mode", "access"},
		description: "Put the interface in access mode on vlan 1",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.Send(blair.PortModeAccess{})
			return nil
		},
	},
	{
		pattern:     []string{"switchport", "mode", "trunk"},
		description: "Put the interface in trunk mode with no allowed vlans",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.Send(blair.PortModeTrunk{})
			return nil
		},
	},
	{
		pattern:     []string{"switchport", "access", "vlan", "<vlan>"},
		description: "Set the access vlan",
		run: func(s *Shell, args map[string]string) error {
			if _, err := s.requireMode(blair.AccessMode{}); err != nil {
				return err
			}

			vlan, err := blair.ParseVlan(args["vlan"])
			if err != nil {
				return err
			}

			s.intf.Send(blair.PortAccessVlan{Vlan: vlan})

			return nil
		},
	},
	{
		pattern:     []string{"no", "switchport", "access", "vlan"},
		description: "Reset the access vlan to 1",
		run: func(s *Shell, _ map[string]string) error {
			s.intf.Send(blair.PortModeAccess{})
			return nil
		},
	},
	{
		pattern:     []string{"switchport", "trunk", "vlans", "add", "<vlans>"},
		description: "Allow <vlans> on the trunk, e.g. 10,20,30-32",
		run: func(s *Shell, args map[string]string) error {
			if _, err := s.requireMode(blair.TrunkMode{}); err != nil {
				return err
			}

			vlans, err := blair.ParseVlanList(args["vlans"])
			if err != nil {
				return err
			}

			s.intf.Send(blair.PortTrunkAddVlans{Vlans: vlans})

			return nil
		},
	},
	{
		pattern:     []string{"switchport", "trunk", "vlans", "remove", "<vlans>"},
		description: "Stop allowing <vlans> on the trunk",
		run: func(s *Shell, args map[string]string) error {
			mode, err := s.requireMode(blair.TrunkMode{})
			if err != nil {
				return err
			}

			trunk, ok := mode.(blair.TrunkMode)
			if !ok {
				return fmt.Errorf("%w: %s is in %s", blair.ErrNotTrunk, s.intf.Name(), mode)
			}

			vlans, err := blair.ParseVlanList(args["vlans"])
			if err != nil {
				return err
			}

			allowed := trunk.Vlans
			for _, v := range vlans {
				if !allowed.Contains(v) {
					return fmt.Errorf("trunk does not allow vlan %d, allowed vlans: %s", v, allowed)
				}
			}

			s.intf.Send(blair.PortTrunkRemoveVlans{Vlans: vlans})

			return nil
		},
	},
	{
		pattern:     []string{"no", "switchport", "trunk", "vlans"},
		description: "Remove every allowed vlan from the trunk",
		run: func(s *Shell, _ map[string]string) error {
			if _, err := s.requireMode(blair.TrunkMode{}); err != nil {
				return err
			}

			s.intf.Send(blair.PortModeTrunk{})

			return nil
		},
	},
	{
		pattern:     []string{"switchport", "mode", "monitor", "<target_intf>"},
		description: "Mirror the traffic sent out of <target_intf> to this interface",
		run: func(s *Shell, args map[string]string) error {
			target, err := s.sw.Port(args["target_intf"])
			if err != nil {
				return err
			}

			if target == s.intf {
				return errors.New("an interface cannot monitor itself")
			}

			s.intf.Send(blair.PortModeMonitoring{Target: target.Name()})

			return nil
		},
	},
	{
		pattern:     []string{"help"},
		description: "Show available commands",
		run: func(s *Shell, _ map[string]string) error {
			s.help("")
			return nil
		},
	},
	{
		pattern:     []string{"exit"},
		description: "Leave interface configuration mode",
		run: func(s *Shell, _ map[string]string) error {
			s.intf = nil
			return nil
		},
	},
}
