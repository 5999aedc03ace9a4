package state

import (
	"net/netip"
	"time"
)

var (
	NodeConfigPath = "node.yaml"
)

// InterfaceCfg is a physical interface that self-announcements are broadcast on
type InterfaceCfg struct {
	Name      string     // e.g. wlan0
	Broadcast netip.Addr `yaml:"broadcast"`         // defaults to the limited broadcast address when unset
	TickMs    int        `yaml:"tick_ms,omitempty"` // self-announcement interval
}

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Key        PrivateKey     // node private key, the SID is its public key
	MemoryMB   int            `yaml:"memory_mb"` // sizes the node and neighbour tables
	Port       uint16         // link-local UDP port
	Interfaces []InterfaceCfg // index in this list is the interface number on the wire
	LogPath    string         `yaml:"log_path,omitempty"` // if not empty, logs are also written to this file
}

func (c InterfaceCfg) TickDelay() time.Duration {
	if c.TickMs == 0 {
		return DefaultTickDelay
	}
	return time.Duration(c.TickMs) * time.Millisecond
}

func (c InterfaceCfg) BroadcastAddr(port uint16) netip.AddrPort {
	addr := c.Broadcast
	if !addr.IsValid() {
		addr = netip.AddrFrom4([4]byte{255, 255, 255, 255})
	}
	return netip.AddrPortFrom(addr, port)
}
