package core

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
	"golang.org/x/net/ipv4"
)

type linkInterface struct {
	name    string
	ifIndex int
	dst     *net.UDPAddr
}

// Link is the UDP transport that frames are broadcast over. Every configured
// interface shares one socket, the kernel tells us which interface a datagram
// arrived on.
type Link struct {
	env    *state.Env
	conn   *ipv4.PacketConn
	ifaces []linkInterface
	// maps the OS interface index to our interface number
	byIndex map[int]int
}

func (l *Link) Init(s *state.State) error {
	s.Log.Debug("init link")
	l.env = s.Env
	l.byIndex = make(map[int]int)
	for i, cfg := range s.Interfaces {
		ni, err := net.InterfaceByName(cfg.Name)
		if err != nil {
			return fmt.Errorf("interface %s: %w", cfg.Name, err)
		}
		dst := cfg.BroadcastAddr(s.Port)
		l.ifaces = append(l.ifaces, linkInterface{
			name:    cfg.Name,
			ifIndex: ni.Index,
			dst:     net.UDPAddrFromAddrPort(dst),
		})
		l.byIndex[ni.Index] = i
	}

	lc := net.ListenConfig{Control: controlSocket}
	pc, err := lc.ListenPacket(s.Context, "udp4", netip.AddrPortFrom(netip.IPv4Unspecified(), s.Port).String())
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.Port, err)
	}
	l.conn = ipv4.NewPacketConn(pc)
	if err = l.conn.SetControlMessage(ipv4.FlagInterface, true); err != nil {
		_ = l.conn.Close()
		return fmt.Errorf("enable interface control messages: %w", err)
	}
	s.Log.Info("link listening", "port", s.Port, "interfaces", len(l.ifaces))

	go l.receive()
	return nil
}

func (l *Link) Cleanup(s *state.State) error {
	if l.conn == nil {
		return nil
	}
	return l.conn.Close()
}

func (l *Link) receive() {
	buf := make([]byte, 65535)
	for {
		n, cm, src, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || l.env.Context.Err() != nil {
				return
			}
			l.env.Log.Warn("link read failed", "err", err)
			continue
		}
		if cm == nil {
			continue
		}
		iface, ok := l.byIndex[cm.IfIndex]
		if !ok {
			l.env.Log.Debug("datagram on unconfigured interface", "ifindex", cm.IfIndex, "from", src)
			continue
		}
		data := append([]byte(nil), buf[:n]...)
		l.env.Dispatch(func(s *state.State) error {
			return Get[*OverlayRouter](s).HandleDatagram(iface, data)
		})
	}
}

// Send broadcasts a frame on one interface, or on every interface for AnyInterface
func (l *Link) Send(iface int, b []byte) error {
	if iface == protocol.AnyInterface {
		var errs []error
		for i := range l.ifaces {
			errs = append(errs, l.Send(i, b))
		}
		return errors.Join(errs...)
	}
	if iface < 0 || iface >= len(l.ifaces) {
		return fmt.Errorf("%w: no interface %d", state.ErrInvalidState, iface)
	}
	li := l.ifaces[iface]
	_, err := l.conn.WriteTo(b, &ipv4.ControlMessage{IfIndex: li.ifIndex}, li.dst)
	if err != nil {
		return fmt.Errorf("send on %s: %w", li.name, err)
	}
	return nil
}
