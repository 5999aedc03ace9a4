package core

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
)

// MakeSelfAnnounce builds the link-local broadcast a node sends on each
// interface tick. [s1,s2] is the range of time the sender has been ticking on
// iface since its previous announcement.
func MakeSelfAnnounce(self state.NodeId, iface int, s1, s2 uint32) *protocol.Frame {
	return &protocol.Frame{
		Type:        protocol.SelfAnnounce,
		TTL:         state.SelfAnnounceTTL,
		Source:      self,
		Destination: state.Broadcast,
		NextHop:     state.Broadcast,
		Payload: protocol.SelfAnnouncement{
			S1:              s1,
			S2:              s2,
			SenderInterface: uint8(iface),
		}.Marshal(),
		Interface: iface,
	}
}

// SawSelfAnnounce handles a self-announcement received on f.Interface. The
// sender becomes a neighbour, the observation is recorded, and an ack is queued
// back to the sender.
func SawSelfAnnounce(rs *state.RoutingState, r Router, f *protocol.Frame, nowMs int64) error {
	if f.Interface < 0 || f.Interface >= state.MaxInterfaces {
		return fmt.Errorf("%w: self-announcement arrived on unknown interface %d", state.ErrInvalidState, f.Interface)
	}
	// the table is not touched unless the announcement parses
	ann, err := protocol.ParseSelfAnnouncement(f.Payload)
	if err != nil {
		return err
	}
	if f.Source == r.Self() {
		return nil
	}
	if f.Source.IsBroadcast() {
		return fmt.Errorf("%w: self-announcement from the broadcast address", state.ErrMalformed)
	}

	n, err := rs.FindNode(f.Source, true)
	if err != nil {
		return fmt.Errorf("find announcing node: %w", err)
	}
	nb, err := rs.Promote(n)
	if err != nil {
		return fmt.Errorf("promote announcing node: %w", err)
	}
	r.Log(SelfAnnounceHeard, "heard self-announcement", "from", f.Source.Short(), "s1", ann.S1, "s2", ann.S2, "if", f.Interface)

	err = RecordDirectObservation(r, nb, ann.SenderInterface, uint8(f.Interface), ann.S1, ann.S2, nowMs)
	if err != nil {
		return err
	}
	return AckSelfAnnounce(rs, r, nb)
}

// MakeSelfAnnounceAck reports how well we hear nb on each of its interfaces
func MakeSelfAnnounceAck(rs *state.RoutingState, self state.NodeId, nb *state.Neighbour) (*protocol.Frame, error) {
	n := rs.NodeOf(nb)
	if n == nil {
		return nil, fmt.Errorf("%w: neighbour %d has no node", state.ErrInvalidState, nb.Id)
	}
	latest := -1
	for i := range nb.Observations {
		obs := &nb.Observations[i]
		if obs.Valid && (latest == -1 || obs.TimeMs > nb.Observations[latest].TimeMs) {
			latest = i
		}
	}
	if latest == -1 {
		return nil, fmt.Errorf("%w: no observations of %s to acknowledge", state.ErrInvalidState, n.Id.Short())
	}

	payload := protocol.SelfAnnounceAckPayload{Seq: nb.Observations[latest].S2}
	for i, s := range nb.Scores {
		if s.Reachable() {
			payload.Scores = append(payload.Scores, protocol.InterfaceScore{Score: s.Wire(), Interface: uint8(i)})
		}
	}
	return &protocol.Frame{
		Type:        protocol.SelfAnnounceAck,
		TTL:         state.AckTTL,
		Source:      self,
		Destination: n.Id,
		Payload:     payload.Marshal(),
		// the next hop is resolved when the queue is flushed
		Interface: protocol.AnyInterface,
	}, nil
}

func AckSelfAnnounce(rs *state.RoutingState, r Router, nb *state.Neighbour) error {
	f, err := MakeSelfAnnounceAck(rs, r.Self(), nb)
	if err != nil {
		return err
	}
	if err = r.Enqueue(protocol.QueueMeshManagement, f); err != nil {
		return fmt.Errorf("queue ack to %s: %w", f.Destination.Short(), err)
	}
	r.Log(AckEnqueued, "queued ack", "to", f.Destination.Short(), "len", len(f.Payload))
	return nil
}

// SawSelfAnnounceAck stores what a neighbour says it hears of us
func SawSelfAnnounceAck(rs *state.RoutingState, r Router, f *protocol.Frame, nowMs int64) error {
	p, err := protocol.ParseSelfAnnounceAck(f.Payload)
	if err != nil {
		return err
	}
	n, err := rs.FindNode(f.Source, false)
	if err != nil {
		return fmt.Errorf("ack from %s: %w", f.Source.Short(), err)
	}
	nb := rs.NeighbourOf(n)
	if nb == nil {
		return fmt.Errorf("ack from %s, which is not a neighbour: %w", f.Source.Short(), state.ErrNotFound)
	}
	nb.Reported = [state.MaxInterfaces]uint8{}
	for _, s := range p.Scores {
		nb.Reported[s.Interface] = s.Score
	}
	nb.ReportedSeq = p.Seq
	nb.ReportedMs = nowMs
	r.Log(AckHeard, "heard ack", "from", f.Source.Short(), "seq", p.Seq, "scores", len(p.Scores))
	return nil
}

// IsMonoDirectional reports whether only one direction of the link to nb
// works: we hear it but it does not hear us, or the other way around
func IsMonoDirectional(nb *state.Neighbour, nowMs int64) bool {
	best, _ := nb.BestScore()
	heard := best.Reachable()
	hears := false
	if nb.ReportedMs != 0 && nowMs-nb.ReportedMs < state.FreshnessWindowMs {
		for _, s := range nb.Reported {
			if s > 0 {
				hears = true
				break
			}
		}
	}
	return heard != hears
}

// MakeNodeAnnounce reports our best neighbours to the link, or returns nil if
// we have none to report
func MakeNodeAnnounce(rs *state.RoutingState, self state.NodeId, iface int) *protocol.Frame {
	reports := make([]protocol.NodeReport, 0)
	for nb := range rs.Neighbours.All() {
		n := rs.NodeOf(nb)
		if n == nil {
			continue
		}
		best, _ := nb.BestScore()
		if !best.Reachable() {
			continue
		}
		reports = append(reports, protocol.NodeReport{Id: n.Id, Score: best.Wire()})
	}
	if len(reports) == 0 {
		return nil
	}
	slices.SortStableFunc(reports, func(a, b protocol.NodeReport) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(reports) > state.MaxReportEntries {
		reports = reports[:state.MaxReportEntries]
	}
	return &protocol.Frame{
		Type:        protocol.NodeAnnounce,
		TTL:         state.NodeAnnounceTTL,
		Source:      self,
		Destination: state.Broadcast,
		NextHop:     state.Broadcast,
		Payload:     protocol.NodeAnnouncement{Reports: reports}.Marshal(),
		Interface:   iface,
	}
}

// SawNodeAnnounce records each report as a second-hand observation. The
// reporter is one gateway further away than what it reports.
func SawNodeAnnounce(rs *state.RoutingState, r Router, f *protocol.Frame, nowMs int64) error {
	p, err := protocol.ParseNodeAnnouncement(f.Payload)
	if err != nil {
		return err
	}
	if f.Source == r.Self() {
		return nil
	}
	hearer := f.Source.Prefix()
	var errs []error
	for _, rep := range p.Reports {
		if rep.Id == r.Self() || rep.Id == f.Source {
			continue
		}
		n, err := rs.FindNode(rep.Id, true)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		err = RecordSecondhandObservation(rs, r, n, hearer, rep.Score, uint32(rep.Gateways)+1, nowMs)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type NextHop struct {
	Id        state.NodeId
	Interface int
}

// bestLink returns the score of our best link to nb, and the local interface it is heard on
func bestLink(nb *state.Neighbour) (state.Score, int) {
	best, senderIf := nb.BestScore()
	if !best.Reachable() {
		return best, protocol.AnyInterface
	}
	iface := protocol.AnyInterface
	var latest int64
	for i := range nb.Observations {
		obs := &nb.Observations[i]
		if !obs.Valid || int(obs.SenderInterface) != senderIf {
			continue
		}
		if iface == protocol.AnyInterface || obs.TimeMs > latest {
			iface = int(obs.ReceiverInterface)
			latest = obs.TimeMs
		}
	}
	return best, iface
}

// ResolveNextHop picks the neighbour to send a frame for dest through. A
// neighbour we hear directly is used as is. Otherwise we go through the
// neighbour that reported dest, weighing its report by how well we hear it.
func ResolveNextHop(rs *state.RoutingState, dest state.NodeId, nowMs int64) (NextHop, error) {
	if dest.IsBroadcast() {
		return NextHop{Id: state.Broadcast, Interface: protocol.AnyInterface}, nil
	}
	n, err := rs.FindNode(dest, false)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return NextHop{}, fmt.Errorf("%w: %s is unknown", state.ErrNoRoute, dest.Short())
		}
		return NextHop{}, err
	}
	if nb := rs.NeighbourOf(n); nb != nil {
		if s, iface := bestLink(nb); s.Reachable() {
			return NextHop{Id: dest, Interface: iface}, nil
		}
	}

	var via *state.Node
	viaIf := protocol.AnyInterface
	viaId := uint16(0)
	bestMetric := 0
	for i := range n.Observations {
		obs := &n.Observations[i]
		if !obs.Valid || nowMs-obs.RxTimeMs >= state.FreshnessWindowMs || obs.Score == 0 {
			continue
		}
		for nb := range rs.Neighbours.All() {
			reporter := rs.NodeOf(nb)
			if reporter == nil || reporter == n || !reporter.Id.HasPrefix(obs.Sender) {
				continue
			}
			s, iface := bestLink(nb)
			if !s.Reachable() {
				continue
			}
			// compared undivided, so a weak but usable path still ranks above none
			metric := int(s.Wire()) * int(obs.Score)
			if metric > bestMetric || (metric == bestMetric && via != nil && nb.Id < viaId) {
				via, viaIf, viaId, bestMetric = reporter, iface, nb.Id, metric
			}
		}
	}
	if via == nil {
		return NextHop{}, fmt.Errorf("%w: no usable neighbour reaches %s", state.ErrNoRoute, dest.Short())
	}
	return NextHop{Id: via.Id, Interface: viaIf}, nil
}
