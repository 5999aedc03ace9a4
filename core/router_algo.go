package core

import (
	"fmt"

	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
)

type RouterEvent int

// trace events

const (
	ObservationMerged RouterEvent = iota
	ObservationAdded
	SecondhandObservationAdded
	SelfAnnounceHeard
	AckEnqueued
	AckHeard
	NeighbourExpired
	TableChanged
	FrameForwarded
)

// warn events

const (
	InconsistentState RouterEvent = iota + 1000
	MalformedFrame
	FrameDropped
)

func (e RouterEvent) String() string {
	switch e {
	case ObservationMerged:
		return "ObservationMerged"
	case ObservationAdded:
		return "ObservationAdded"
	case SecondhandObservationAdded:
		return "SecondhandObservationAdded"
	case SelfAnnounceHeard:
		return "SelfAnnounceHeard"
	case AckEnqueued:
		return "AckEnqueued"
	case AckHeard:
		return "AckHeard"
	case NeighbourExpired:
		return "NeighbourExpired"
	case TableChanged:
		return "TableChanged"
	case FrameForwarded:
		return "FrameForwarded"
	case InconsistentState:
		return "InconsistentState"
	case MalformedFrame:
		return "MalformedFrame"
	case FrameDropped:
		return "FrameDropped"
	}
	return fmt.Sprintf("RouterEvent(%d)", int(e))
}

// Router is an interface that defines the underlying router operations
type Router interface {
	Self() state.NodeId
	Enqueue(q protocol.QueueId, f *protocol.Frame) error
	Log(event RouterEvent, desc string, args ...any)
}

// RecordDirectObservation records that we heard nb's self-announcements over
// [s1,s2] from its interface senderIf on our interface receiverIf. A sighting
// that continues a recent range on the same interface extends that range
// instead of taking a new slot.
func RecordDirectObservation(r Router, nb *state.Neighbour, senderIf, receiverIf uint8, s1, s2 uint32, nowMs int64) error {
	if nb == nil {
		return fmt.Errorf("%w: neighbour structure missing", state.ErrInvalidState)
	}
	if int(senderIf) >= state.MaxInterfaces || int(receiverIf) >= state.MaxInterfaces {
		return fmt.Errorf("%w: interface out of range (sender %d, receiver %d)", state.ErrMalformed, senderIf, receiverIf)
	}

	idx := nb.MostRecentObservation
	merged := false
	for range state.MaxObservations {
		obs := &nb.Observations[idx]
		if !obs.Valid || !state.SeqnoContiguous(obs.S2, s1) {
			break
		}
		if obs.SenderInterface == senderIf {
			if obs.S1 == 0 {
				obs.S1 = obs.S2
			}
			if state.SeqnoLt(obs.S2, s2) {
				obs.S2 = s2
			}
			trimObservation(obs)
			obs.ReceiverInterface = receiverIf
			obs.TimeMs = nowMs
			merged = true
			r.Log(ObservationMerged, "extended observation", "slot", idx, "s1", obs.S1, "s2", obs.S2, "if", senderIf)
			break
		}
		idx--
		if idx < 0 {
			idx = state.MaxObservations - 1
		}
	}

	if !merged {
		idx = (nb.MostRecentObservation + 1) % state.MaxObservations
		nb.Observations[idx] = state.DirectObservation{
			Valid:             true,
			TimeMs:            nowMs,
			S1:                s1,
			S2:                s2,
			SenderInterface:   senderIf,
			ReceiverInterface: receiverIf,
		}
		nb.MostRecentObservation = idx
		r.Log(ObservationAdded, "new observation", "slot", idx, "s1", s1, "s2", s2, "if", senderIf)
	}
	nb.LastObservationMs = nowMs

	RecalcNeighbourMetrics(nb, nowMs)
	return nil
}

// trimObservation keeps a merged range within the freshness window, so a link
// heard without loss for longer than MaxPlausibleMs keeps its score
func trimObservation(obs *state.DirectObservation) {
	window := uint32(state.FreshnessWindowMs)
	if obs.Interval() <= window {
		return
	}
	obs.S1 = obs.S2 - window
	if obs.S1 == 0 {
		// 0 means unset
		obs.S1 = 1
	}
}

// RecordSecondhandObservation records a report, heard from a node with the
// given SID prefix, that n is reachable with score via some gateways
func RecordSecondhandObservation(rs *state.RoutingState, r Router, n *state.Node, hearer state.SenderPrefix, score uint8, gateways uint32, nowMs int64) error {
	if n == nil {
		return fmt.Errorf("%w: node structure missing", state.ErrInvalidState)
	}
	idx := (n.MostRecentObservation + 1) % state.MaxObservations
	n.Observations[idx] = state.SecondhandObservation{
		Valid:    true,
		RxTimeMs: nowMs,
		Score:    score,
		Gateways: gateways,
		Sender:   hearer,
	}
	n.MostRecentObservation = idx
	n.LastObservationMs = nowMs
	r.Log(SecondhandObservationAdded, "reported observation", "node", n.Id.Short(), "via", hearer, "score", score, "gateways", gateways)

	if !n.IsNeighbour() {
		if _, err := rs.Promote(n); err != nil {
			return fmt.Errorf("promote reported node: %w", err)
		}
	}
	RecalcNodeMetrics(n, nowMs)
	return nil
}

// ScoreCurve maps milliseconds of observed announcements to a score. It climbs
// quickly, then plateaus.
func ScoreCurve(ms uint32) state.Score {
	if ms == 0 {
		return 0
	}
	m := int64(ms)
	var score int64
	if 1+m/100 < 100 {
		score = 1 + m/100 // 1 - 99
	} else if 100+(m/500-20) < 200 {
		score = 100 + (m/500 - 20) // 100 - 199
	} else if 200+(m/3000-20) < 255 {
		score = 200 + (m/3000 - 20) // 200 - 254
	} else {
		score = state.MaxScore
	}
	return state.Score(max(score, 0))
}

// RecalcNeighbourMetrics recomputes the per-interface scores of a neighbour
// from the sequence ranges observed within the freshness window, less one
// point for each second since anything was heard from it
func RecalcNeighbourMetrics(nb *state.Neighbour, nowMs int64) {
	var observed [state.MaxInterfaces]uint32
	var mostRecent int64
	heard := false

	for i := range nb.Observations {
		obs := &nb.Observations[i]
		if !obs.Valid {
			continue
		}
		if !heard || obs.TimeMs > mostRecent {
			mostRecent = obs.TimeMs
			heard = true
		}
		if obs.S1 == 0 || nowMs-obs.TimeMs >= state.FreshnessWindowMs {
			continue
		}
		// modulo 2^32, so the sequence wrapping does not matter
		interval := obs.Interval()
		if interval < state.MaxPlausibleMs {
			observed[obs.SenderInterface] += interval
		}
	}

	decay := state.Score(0)
	if heard {
		decay = state.Score(max(nowMs-mostRecent, 0) / 1000)
	}
	for i := range nb.Scores {
		nb.Scores[i] = ScoreCurve(observed[i]) - decay
	}
}

// RecalcNodeMetrics aggregates second-hand reports: the best fresh report,
// less GatewayPenalty per gateway and one point per second of age
func RecalcNodeMetrics(n *state.Node, nowMs int64) {
	best := state.Score(0)
	for i := range n.Observations {
		obs := &n.Observations[i]
		age := nowMs - obs.RxTimeMs
		if !obs.Valid || age >= state.FreshnessWindowMs {
			continue
		}
		gateways := state.Score(min(obs.Gateways, state.MaxScore))
		cand := state.Score(obs.Score) - gateways*state.GatewayPenalty - state.Score(max(age, 0)/1000)
		best = max(best, cand)
	}
	n.Score = best
}

// AgeNeighbours is run on the tick. It decays the scores of every neighbour,
// and demotes neighbours that have not been heard of within the freshness window.
func AgeNeighbours(rs *state.RoutingState, r Router, nowMs int64) {
	for nb := range rs.Neighbours.All() {
		n := rs.NodeOf(nb)
		if n == nil {
			r.Log(InconsistentState, "neighbour refers to a node that no longer exists", "neighbour", nb.Id)
			rs.Demote(nb)
			continue
		}
		last := max(nb.LastObservationMs, n.LastObservationMs)
		if nowMs-last > state.FreshnessWindowMs {
			r.Log(NeighbourExpired, "neighbour expired", "node", n.Id.Short(), "neighbour", nb.Id, "silent", nowMs-last)
			rs.Demote(nb)
			continue
		}
		RecalcNeighbourMetrics(nb, nowMs)
	}
}
