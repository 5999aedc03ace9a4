package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/encodeous/overmesh/state"
)

// SelfAnnouncement is the payload of a SelfAnnounce frame. The sender has been
// ticking on SenderInterface over the sequence range [S1,S2].
type SelfAnnouncement struct {
	S1              uint32
	S2              uint32
	SenderInterface uint8
}

const selfAnnouncementSize = 9

func (p SelfAnnouncement) Marshal() []byte {
	buf := make([]byte, 0, selfAnnouncementSize)
	buf = binary.BigEndian.AppendUint32(buf, p.S1)
	buf = binary.BigEndian.AppendUint32(buf, p.S2)
	return append(buf, p.SenderInterface)
}

// ParseSelfAnnouncement ignores any trailing bytes, so the payload can be extended
func ParseSelfAnnouncement(b []byte) (SelfAnnouncement, error) {
	if len(b) < selfAnnouncementSize {
		return SelfAnnouncement{}, fmt.Errorf("%w: self-announcement of %d bytes is too short", state.ErrMalformed, len(b))
	}
	p := SelfAnnouncement{
		S1:              binary.BigEndian.Uint32(b[0:4]),
		S2:              binary.BigEndian.Uint32(b[4:8]),
		SenderInterface: b[8],
	}
	if int(p.SenderInterface) >= state.MaxInterfaces {
		return SelfAnnouncement{}, fmt.Errorf("%w: sender interface %d out of range", state.ErrMalformed, p.SenderInterface)
	}
	return p, nil
}

type InterfaceScore struct {
	Score     uint8
	Interface uint8
}

// SelfAnnounceAckPayload tells an announcer how well we hear it on each of our interfaces
type SelfAnnounceAckPayload struct {
	// S2 of the most recently received observation of the announcer
	Seq    uint32
	Scores []InterfaceScore
}

func (p SelfAnnounceAckPayload) Marshal() []byte {
	buf := make([]byte, 0, 4+2*len(p.Scores)+1)
	buf = binary.BigEndian.AppendUint32(buf, p.Seq)
	for _, s := range p.Scores {
		if s.Score == 0 {
			continue
		}
		buf = append(buf, s.Score, s.Interface)
	}
	// terminate list
	return append(buf, 0)
}

func ParseSelfAnnounceAck(b []byte) (SelfAnnounceAckPayload, error) {
	if len(b) < 5 {
		return SelfAnnounceAckPayload{}, fmt.Errorf("%w: ack of %d bytes is too short", state.ErrMalformed, len(b))
	}
	p := SelfAnnounceAckPayload{Seq: binary.BigEndian.Uint32(b)}
	b = b[4:]
	for {
		if len(b) == 0 {
			return SelfAnnounceAckPayload{}, fmt.Errorf("%w: unterminated score list", state.ErrMalformed)
		}
		if b[0] == 0 {
			return p, nil
		}
		if len(b) < 2 {
			return SelfAnnounceAckPayload{}, fmt.Errorf("%w: truncated score entry", state.ErrMalformed)
		}
		if int(b[1]) >= state.MaxInterfaces {
			return SelfAnnounceAckPayload{}, fmt.Errorf("%w: interface %d out of range", state.ErrMalformed, b[1])
		}
		p.Scores = append(p.Scores, InterfaceScore{Score: b[0], Interface: b[1]})
		b = b[2:]
	}
}

// NodeReport is a claim that the sender can reach Id with Score, via Gateways intermediate nodes
type NodeReport struct {
	Id       state.NodeId
	Score    uint8
	Gateways uint8
}

type NodeAnnouncement struct {
	Reports []NodeReport
}

const nodeReportSize = state.SidSize + 2

func (p NodeAnnouncement) Marshal() []byte {
	buf := make([]byte, 0, 1+len(p.Reports)*nodeReportSize)
	buf = append(buf, uint8(len(p.Reports)))
	for _, r := range p.Reports {
		buf = append(buf, r.Id[:]...)
		buf = append(buf, r.Score, r.Gateways)
	}
	return buf
}

func ParseNodeAnnouncement(b []byte) (NodeAnnouncement, error) {
	if len(b) < 1 {
		return NodeAnnouncement{}, fmt.Errorf("%w: empty node announcement", state.ErrMalformed)
	}
	cnt := int(b[0])
	if cnt > state.MaxReportEntries {
		return NodeAnnouncement{}, fmt.Errorf("%w: %d reports exceeds the limit of %d", state.ErrMalformed, cnt, state.MaxReportEntries)
	}
	if len(b) != 1+cnt*nodeReportSize {
		return NodeAnnouncement{}, fmt.Errorf("%w: node announcement length %d does not hold %d reports", state.ErrMalformed, len(b), cnt)
	}
	p := NodeAnnouncement{Reports: make([]NodeReport, 0, cnt)}
	b = b[1:]
	for range cnt {
		r := NodeReport{
			Id:       state.NodeId(b[:state.SidSize]),
			Score:    b[state.SidSize],
			Gateways: b[state.SidSize+1],
		}
		if r.Id.IsReserved() || r.Id.IsBroadcast() {
			return NodeAnnouncement{}, fmt.Errorf("%w: report for reserved address %s", state.ErrMalformed, r.Id)
		}
		p.Reports = append(p.Reports, r)
		b = b[nodeReportSize:]
	}
	return p, nil
}
