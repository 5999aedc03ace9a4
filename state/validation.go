package state

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
)

var ifNamePattern, _ = regexp.Compile("^[0-9A-Za-z._@-]+$")

func PathValidator(s string) error {
	_, err := os.Stat(path.Dir(s))
	if err != nil {
		return err
	}
	_, err = filepath.Abs(s)
	return err
}

func InterfaceNameValidator(s string) error {
	if !ifNamePattern.MatchString(s) {
		return fmt.Errorf("%s is not a valid interface name, must match pattern %s", s, ifNamePattern.String())
	}
	if len(s) > 15 {
		return fmt.Errorf("len(\"%s\") = %d > 15 is too long", s, len(s))
	}
	return nil
}

func NodeConfigValidator(node *LocalCfg) error {
	if node.Key == (PrivateKey{}) {
		return fmt.Errorf("node.Key is not set")
	}
	id, err := node.Key.Pubkey()
	if err != nil {
		return fmt.Errorf("node.Key is invalid: %w", err)
	}
	if id.IsReserved() || id.IsBroadcast() {
		return fmt.Errorf("node.Key derives sid %s, which is in a reserved address space", id)
	}
	if node.MemoryMB <= 0 {
		return fmt.Errorf("node.MemoryMB must be positive, got %d", node.MemoryMB)
	}
	if node.Port == 0 {
		return fmt.Errorf("node.Port is not set")
	}
	if len(node.Interfaces) == 0 {
		return fmt.Errorf("at least one interface must be configured")
	}
	if len(node.Interfaces) > MaxInterfaces {
		return fmt.Errorf("%d interfaces configured, at most %d are supported", len(node.Interfaces), MaxInterfaces)
	}
	names := make([]string, 0, len(node.Interfaces))
	for _, itf := range node.Interfaces {
		if err := InterfaceNameValidator(itf.Name); err != nil {
			return err
		}
		if slices.Contains(names, itf.Name) {
			return fmt.Errorf("duplicate interface: %s", itf.Name)
		}
		names = append(names, itf.Name)
		if itf.Broadcast.IsValid() && !itf.Broadcast.Is4() {
			return fmt.Errorf("interface %s: broadcast address %s is not IPv4", itf.Name, itf.Broadcast)
		}
		if itf.TickDelay() < MinTickDelay {
			return fmt.Errorf("interface %s: tick %s is shorter than %s", itf.Name, itf.TickDelay(), MinTickDelay)
		}
	}
	return nil
}
