package state

// Score is a reachability score. Values in (0,255] mean reachable, anything
// else is unreachable. Decay can take a score below zero.
type Score int32

// Wire clamps the score into the single byte it is advertised as
func (s Score) Wire() uint8 {
	return uint8(min(max(s, 0), MaxScore))
}

func (s Score) Reachable() bool {
	return s > 0
}

// SecondhandObservation is a claim by another node that it can reach a node
// with the given score, via some number of gateways
type SecondhandObservation struct {
	Valid    bool
	RxTimeMs int64
	Score    uint8
	Gateways uint32
	Sender   SenderPrefix
}

// DirectObservation covers the half-open sequence range [S1,S2] of one or
// more contiguous self-announcements heard from a neighbour
type DirectObservation struct {
	Valid             bool
	TimeMs            int64
	S1                uint32
	S2                uint32
	SenderInterface   uint8
	ReceiverInterface uint8
}

// Interval is the length of the observed range in sequence steps (milliseconds)
func (o *DirectObservation) Interval() uint32 {
	return SeqnoDistance(o.S1, o.S2)
}
