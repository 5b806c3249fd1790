package state

import (
	"fmt"
	"regexp"
)

var namePattern, _ = regexp.Compile("^[0-9a-z._-]+$")
var ifacePattern, _ = regexp.Compile("^[0-9A-Za-z._@-]+$")

func NameValidator(s string) error {
	if !namePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid name, must match pattern %s", s, namePattern.String())
	}
	if len(s) > 100 {
		return fmt.Errorf("len(\"%s\") = %d > 100 is too long", s, len(s))
	}
	return nil
}

// InterfaceValidator checks s is usable as a linux interface name
func InterfaceValidator(s string) error {
	if !ifacePattern.MatchString(s) {
		return fmt.Errorf("%q is not a valid interface name", s)
	}
	if len(s) > 15 {
		return fmt.Errorf("interface name %q is longer than 15 characters", s)
	}
	return nil
}

func NeighbourValidator(neighbours []NeighbourCfg) error {
	ifaces := make(map[string]struct{})
	ids := make(map[Identity]struct{})
	for _, n := range neighbours {
		if !n.MeshIP.IsValid() {
			return fmt.Errorf("neighbour on %q has no mesh_ip", n.Interface)
		}
		if err := InterfaceValidator(n.Interface); err != nil {
			return err
		}
		if _, ok := ifaces[n.Interface]; ok {
			return fmt.Errorf("duplicate neighbour interface: %s", n.Interface)
		}
		if _, ok := ids[n.Identity]; ok {
			return fmt.Errorf("duplicate neighbour identity: %s", n.Identity)
		}
		ifaces[n.Interface] = struct{}{}
		ids[n.Identity] = struct{}{}
	}
	return nil
}

func ExitValidator(exit *ExitCandidate) error {
	if !exit.ExitIP.IsValid() {
		return fmt.Errorf("exit has no exit_ip")
	}
	if exit.RegistrationPort == 0 {
		return fmt.Errorf("exit %s has no registration_port", exit.ExitIP)
	}
	if d := exit.Details; d != nil {
		if d.ExitPrice == nil || d.ExitPrice.Big().Sign() < 0 {
			return fmt.Errorf("exit %s must have a non-negative exit_price", exit.ExitIP)
		}
		if int(d.Netmask) > d.OwnInternalIP.BitLen() {
			return fmt.Errorf("exit %s netmask /%d is too long", exit.ExitIP, d.Netmask)
		}
	}
	return nil
}

func SettingsValidator(s *Settings) error {
	if err := NameValidator(s.Name); err != nil {
		return err
	}
	if !s.Network.OwnIP.IsValid() {
		return fmt.Errorf("network.own_ip is invalid")
	}
	if s.Counters.SetPrefix != "" {
		if err := NameValidator(s.Counters.SetPrefix); err != nil {
			return fmt.Errorf("counters.set_prefix: %w", err)
		}
	}
	if err := NeighbourValidator(s.Neighbours); err != nil {
		return err
	}
	seen := make(map[ExitKey]struct{})
	for i := range s.Exits {
		if err := ExitValidator(&s.Exits[i]); err != nil {
			return err
		}
		k := s.Exits[i].Key()
		if _, ok := seen[k]; ok {
			return fmt.Errorf("duplicate exit: %s", s.Exits[i])
		}
		seen[k] = struct{}{}
	}
	if s.CurrentExit != nil {
		if err := ExitValidator(s.CurrentExit); err != nil {
			return fmt.Errorf("current_exit: %w", err)
		}
	}
	return nil
}
