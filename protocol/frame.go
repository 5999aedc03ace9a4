package protocol

import (
	"fmt"

	"github.com/encodeous/overmesh/state"
)

// FrameType is the type of an overlay frame. The low 4 bits of the type byte
// on the wire carry a modifier instead.
type FrameType uint8

const (
	SelfAnnounce    FrameType = 0x10
	SelfAnnounceAck FrameType = 0x20
	NodeAnnounce    FrameType = 0x40

	ModifierBits = 0x0f
)

func (t FrameType) Valid() bool {
	switch t {
	case SelfAnnounce, SelfAnnounceAck, NodeAnnounce:
		return true
	}
	return false
}

func (t FrameType) String() string {
	switch t {
	case SelfAnnounce:
		return "SelfAnnounce"
	case SelfAnnounceAck:
		return "SelfAnnounceAck"
	case NodeAnnounce:
		return "NodeAnnounce"
	}
	return fmt.Sprintf("FrameType(0x%02x)", uint8(t))
}

// AnyInterface lets the link layer pick the interface
const AnyInterface = -1

type Frame struct {
	Type        FrameType
	Modifier    uint8
	TTL         uint8
	Source      state.NodeId
	Destination state.NodeId
	NextHop     state.NodeId
	Payload     []byte

	// Interface is where the frame arrived, or which interface it must leave by. It is not encoded.
	Interface int
}

func (f *Frame) String() string {
	return fmt.Sprintf("%s(ttl: %d, src: %s, dst: %s, nh: %s, len: %d, if: %d)",
		f.Type, f.TTL, f.Source.Short(), f.Destination.Short(), f.NextHop.Short(), len(f.Payload), f.Interface)
}
