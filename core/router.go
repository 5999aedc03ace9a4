package core

import (
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"

	"github.com/encodeous/overmesh/perf"
	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
)

// OverlayRouter owns the routing tables and runs the self-announcement protocol
type OverlayRouter struct {
	*state.State
	Queue *protocol.Queue
	// Transmit hands an encoded frame to the link layer
	Transmit func(iface int, b []byte) error
	// sequence sent on the previous tick, per interface
	lastSeq []uint32
}

func newRoutingRng() (*mrand.Rand, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("seed table hash: %w", err)
	}
	return mrand.New(mrand.NewChaCha8(seed)), nil
}

func (r *OverlayRouter) Init(s *state.State) error {
	s.Log.Debug("init router")
	r.State = s
	r.Queue = protocol.NewQueue(state.QueueCapacity, state.QueueFrameLifetime, s.Clock)
	r.lastSeq = make([]uint32, len(s.Interfaces))

	rng, err := newRoutingRng()
	if err != nil {
		return err
	}
	rs, err := state.NewRoutingState(s.MemoryMB, rng)
	if err != nil {
		return fmt.Errorf("allocate routing tables for %d MB: %w", s.MemoryMB, err)
	}
	rs.OnEvent = r.tableEvent
	s.RoutingState = rs
	s.Log.Info("allocated routing tables",
		"bins", rs.Sizing.Bins,
		"associativity", rs.Sizing.Associativity,
		"neighbours", rs.Sizing.NeighbourCapacity-1,
		"bytes", rs.Sizing.Bytes)

	s.Log.Debug("schedule router tasks")
	for i, iface := range s.Interfaces {
		s.Env.RepeatTask(r.tick(i), iface.TickDelay())
	}
	s.Env.RepeatTask(func(s *state.State) error {
		AgeNeighbours(s.RoutingState, r, s.NowMs())
		return nil
	}, state.AgeDelay)
	return nil
}

func (r *OverlayRouter) Cleanup(s *state.State) error {
	r.State = nil
	r.Queue = nil
	return nil
}

func (r *OverlayRouter) Self() state.NodeId {
	return r.Env.Self
}

func (r *OverlayRouter) Enqueue(q protocol.QueueId, f *protocol.Frame) error {
	superseded, err := r.Queue.Enqueue(q, f)
	if err != nil {
		return err
	}
	if f.Type == protocol.SelfAnnounceAck && f.Source == r.Self() {
		perf.AcksQueued.Add(1)
	}
	if superseded {
		r.Log(FrameDropped, "superseded unsent frame", "frame", f)
	}
	return nil
}

func (r *OverlayRouter) Log(event RouterEvent, desc string, args ...any) {
	if event >= InconsistentState {
		r.Env.Log.Warn(fmt.Sprintf("%s %s", event.String(), desc), args...)
		return
	}
	r.Env.Log.Debug(fmt.Sprintf("%s %s", event.String(), desc), args...)
}

func (r *OverlayRouter) tableEvent(ev state.TableEvent, id state.NodeId) {
	switch ev {
	case state.NodeEvicted:
		perf.NodeEvictions.Add(1)
	case state.NeighbourEvicted:
		perf.NeighbourEvictions.Add(1)
	case state.NeighbourDemoted:
		perf.NeighbourDemotions.Add(1)
	}
	r.Log(TableChanged, ev.String(), "node", id.Short())
}

// tick announces ourselves and our neighbours on an interface, then flushes the queues
func (r *OverlayRouter) tick(iface int) func(*state.State) error {
	return func(s *state.State) error {
		now := uint32(s.NowMs())
		r.send(MakeSelfAnnounce(r.Self(), iface, r.lastSeq[iface], now))
		r.lastSeq[iface] = now
		if f := MakeNodeAnnounce(s.RoutingState, r.Self(), iface); f != nil {
			r.send(f)
		}
		r.Flush(s)
		return nil
	}
}

// Flush drains the outbound queues, resolving a next hop for each frame
func (r *OverlayRouter) Flush(s *state.State) {
	now := s.NowMs()
	for _, q := range []protocol.QueueId{protocol.QueueMeshManagement, protocol.QueueOrdinary} {
		for _, f := range r.Queue.Drain(q) {
			nh, err := ResolveNextHop(s.RoutingState, f.Destination, now)
			if err != nil {
				perf.DroppedFrames.Add(1)
				r.Log(FrameDropped, "cannot send now", "frame", f, "err", err)
				continue
			}
			f.NextHop = nh.Id
			if f.Interface == protocol.AnyInterface {
				f.Interface = nh.Interface
			}
			r.send(f)
		}
	}
}

func (r *OverlayRouter) send(f *protocol.Frame) {
	b, err := protocol.Encode(f)
	if err != nil {
		r.Log(InconsistentState, "failed to encode frame", "frame", f, "err", err)
		return
	}
	if r.Transmit == nil {
		return
	}
	if err := r.Transmit(f.Interface, b); err != nil {
		perf.DroppedFrames.Add(1)
		r.Env.Log.Debug("failed to transmit frame", "frame", f, "err", err)
		return
	}
	perf.SentFramesPerSecond.Add(1)
	perf.SentBytesPerSecond.Add(float64(len(b)))
}

// HandleDatagram decodes a datagram that arrived on iface and handles the frame in it
func (r *OverlayRouter) HandleDatagram(iface int, b []byte) error {
	perf.RecvFramesPerSecond.Add(1)
	perf.RecvBytesPerSecond.Add(float64(len(b)))
	f, err := protocol.Decode(b)
	if err != nil {
		perf.MalformedFrames.Add(1)
		r.Log(MalformedFrame, "dropped datagram", "if", iface, "len", len(b), "err", err)
		return nil
	}
	f.Interface = iface
	return r.HandleFrame(f)
}

// HandleFrame delivers frames addressed to us, and forwards the rest
func (r *OverlayRouter) HandleFrame(f *protocol.Frame) error {
	self := r.Self()
	if f.Source == self {
		return nil
	}
	if !f.NextHop.IsBroadcast() && f.NextHop != self {
		return nil
	}
	if f.Destination != self && !f.Destination.IsBroadcast() {
		return r.forward(f)
	}

	now := r.NowMs()
	var err error
	switch f.Type {
	case protocol.SelfAnnounce:
		perf.SelfAnnouncesPerSecond.Add(1)
		err = SawSelfAnnounce(r.RoutingState, r, f, now)
	case protocol.SelfAnnounceAck:
		err = SawSelfAnnounceAck(r.RoutingState, r, f, now)
	case protocol.NodeAnnounce:
		err = SawNodeAnnounce(r.RoutingState, r, f, now)
	default:
		err = fmt.Errorf("%w: %s", state.ErrNotImplemented, f.Type)
	}
	switch {
	case err == nil:
	case errors.Is(err, state.ErrAllocation):
		return err
	case errors.Is(err, state.ErrMalformed):
		perf.MalformedFrames.Add(1)
		r.Log(MalformedFrame, "rejected frame", "frame", f, "err", err)
	case errors.Is(err, state.ErrInvalidState):
		r.Log(InconsistentState, "failed to handle frame", "frame", f, "err", err)
	default:
		r.Env.Log.Debug("failed to handle frame", "frame", f, "err", err)
	}
	return nil
}

func (r *OverlayRouter) forward(f *protocol.Frame) error {
	if f.TTL <= 1 {
		perf.DroppedFrames.Add(1)
		r.Log(FrameDropped, "ttl expired", "frame", f)
		return nil
	}
	fwd := *f
	fwd.TTL--
	fwd.NextHop = state.NodeId{}
	fwd.Interface = protocol.AnyInterface
	if err := r.Enqueue(protocol.QueueOrdinary, &fwd); err != nil {
		perf.DroppedFrames.Add(1)
		r.Log(FrameDropped, "failed to queue forwarded frame", "frame", f, "err", err)
		return nil
	}
	r.Log(FrameForwarded, "queued frame for forwarding", "frame", &fwd)
	return nil
}
