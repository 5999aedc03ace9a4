package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/encodeous/overmesh/state"
)

const (
	formatVersion = 0x1000
	lengthMask    = 0x0fff
	headerSize    = 2
	// type, ttl, next hop, destination, source
	fixedBodySize = 1 + 1 + 3*state.SidSize

	MaxPayload = lengthMask - fixedBodySize
)

func checkAddrs(f *Frame) error {
	if f.Source.IsReserved() || f.Destination.IsReserved() || f.NextHop.IsReserved() {
		return fmt.Errorf("%w: one or more frame addresses begins with reserved value 0x00-0x0f", state.ErrMalformed)
	}
	return nil
}

// Encode packages a frame as: version|length, type|modifier, ttl, next hop, destination, source, payload
func Encode(f *Frame) ([]byte, error) {
	if !f.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown frame type %s", state.ErrMalformed, f.Type)
	}
	if f.Modifier&^ModifierBits != 0 {
		return nil, fmt.Errorf("%w: modifier 0x%02x does not fit in the modifier bits", state.ErrMalformed, f.Modifier)
	}
	if err := checkAddrs(f); err != nil {
		return nil, err
	}
	if len(f.Payload) > MaxPayload {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds %d", state.ErrMalformed, len(f.Payload), MaxPayload)
	}

	body := fixedBodySize + len(f.Payload)
	buf := make([]byte, 0, headerSize+body)
	buf = binary.BigEndian.AppendUint16(buf, uint16(formatVersion|body))
	buf = append(buf, uint8(f.Type)|f.Modifier, f.TTL)
	buf = append(buf, f.NextHop[:]...)
	buf = append(buf, f.Destination[:]...)
	buf = append(buf, f.Source[:]...)
	buf = append(buf, f.Payload...)
	return buf, nil
}

// Decode parses a frame. Nothing is returned unless the whole frame is well-formed.
func Decode(b []byte) (*Frame, error) {
	if len(b) < headerSize+fixedBodySize {
		return nil, fmt.Errorf("%w: frame of %d bytes is too short", state.ErrMalformed, len(b))
	}
	hdr := binary.BigEndian.Uint16(b)
	if hdr&^lengthMask != formatVersion {
		return nil, fmt.Errorf("%w: unsupported frame format 0x%04x", state.ErrMalformed, hdr&^lengthMask)
	}
	body := int(hdr & lengthMask)
	if body != len(b)-headerSize {
		return nil, fmt.Errorf("%w: frame length %d does not match %d received bytes", state.ErrMalformed, body, len(b)-headerSize)
	}
	b = b[headerSize:]

	f := &Frame{
		Type:      FrameType(b[0] &^ ModifierBits),
		Modifier:  b[0] & ModifierBits,
		TTL:       b[1],
		Interface: AnyInterface,
	}
	if !f.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown frame type %s", state.ErrMalformed, f.Type)
	}
	if f.TTL == 0 {
		return nil, fmt.Errorf("%w: frame has expired", state.ErrMalformed)
	}
	off := 2
	for _, addr := range []*state.NodeId{&f.NextHop, &f.Destination, &f.Source} {
		copy(addr[:], b[off:off+state.SidSize])
		off += state.SidSize
	}
	if err := checkAddrs(f); err != nil {
		return nil, err
	}
	f.Payload = append([]byte(nil), b[off:]...)
	return f, nil
}
