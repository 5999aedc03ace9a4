package core

import (
	"errors"
	"testing"

	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMakeSelfAnnounce(t *testing.T) {
	f := MakeSelfAnnounce(Sid(0xa0), 2, 1000, 1500)
	assert.Equal(t, protocol.SelfAnnounce, f.Type)
	assert.Equal(t, state.SelfAnnounceTTL, f.TTL)
	assert.True(t, f.Destination.IsBroadcast())
	assert.True(t, f.NextHop.IsBroadcast())
	assert.Equal(t, 2, f.Interface)

	p, err := protocol.ParseSelfAnnouncement(f.Payload)
	require.NoError(t, err)
	assert.Equal(t, protocol.SelfAnnouncement{S1: 1000, S2: 1500, SenderInterface: 2}, p)

	_, err = protocol.Encode(f)
	assert.NoError(t, err)
}

func TestSawSelfAnnounce_QueuesAck(t *testing.T) {
	a, b := Sid(0xa0), Sid(0xb0)
	h := NewHarness(a)
	rs := NewTables(t)

	h.Hear(t, rs, b, 0, 0, 1000, 1200, t0)
	h.Hear(t, rs, b, 0, 0, 1200, 1500, t0+300)

	actions := h.GetActions()
	actions.AssertContains(t, "ENQUEUE", protocol.QueueMeshManagement, protocol.SelfAnnounceAck, b)
	require.Len(t, h.Frames, 2)

	ack := h.Frames[1]
	assert.Equal(t, a, ack.Source)
	assert.Equal(t, b, ack.Destination)
	assert.Equal(t, state.AckTTL, ack.TTL)
	assert.Equal(t, protocol.AnyInterface, ack.Interface)

	p, err := protocol.ParseSelfAnnounceAck(ack.Payload)
	require.NoError(t, err)
	want := protocol.SelfAnnounceAckPayload{
		Seq:    1500,
		Scores: []protocol.InterfaceScore{{Score: 6, Interface: 0}},
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("ack mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, byte(0), ack.Payload[len(ack.Payload)-1])
}

func TestSawSelfAnnounce_AckOmitsUnreachable(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)
	b := Sid(0xb0)

	// the first announcement of a node has no known start, so no score yet
	h.Hear(t, rs, b, 0, 4, 0, 1200, t0)
	p, err := protocol.ParseSelfAnnounceAck(h.Frames[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(1200), p.Seq)
	assert.Empty(t, p.Scores)

	// the merge seeds the range start from the first sighting
	nb := h.Hear(t, rs, b, 0, 4, 1200, 1700, t0+500)
	p, err = protocol.ParseSelfAnnounceAck(h.Frames[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, []protocol.InterfaceScore{{Score: ScoreCurve(500).Wire(), Interface: 4}}, p.Scores)
	assert.Equal(t, uint32(1200), validObservations(nb)[0].S1)
}

func TestSawSelfAnnounce_MalformedLeavesTablesAlone(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)

	f := AnnounceFrame(Sid(0xb0), 0, 0, 1000, 1200)
	f.Payload = f.Payload[:5]
	err := SawSelfAnnounce(rs, h, f, t0)
	assert.ErrorIs(t, err, state.ErrMalformed)
	assert.Zero(t, rs.Nodes.Occupied())
	assert.Zero(t, rs.Neighbours.Count())
	assert.Empty(t, h.Frames)

	f = AnnounceFrame(Sid(0xb0), 0, 0, 1000, 1200)
	f.Payload[8] = 200
	err = SawSelfAnnounce(rs, h, f, t0)
	assert.ErrorIs(t, err, state.ErrMalformed)
	assert.Zero(t, rs.Nodes.Occupied())

	f = AnnounceFrame(Sid(0xb0), 0, 0, 1000, 1200)
	f.Interface = protocol.AnyInterface
	err = SawSelfAnnounce(rs, h, f, t0)
	assert.ErrorIs(t, err, state.ErrInvalidState)
	assert.Zero(t, rs.Nodes.Occupied())
}

func TestSawSelfAnnounce_IgnoresSelf(t *testing.T) {
	a := Sid(0xa0)
	h := NewHarness(a)
	rs := NewTables(t)
	require.NoError(t, SawSelfAnnounce(rs, h, AnnounceFrame(a, 0, 0, 1000, 1200), t0))
	assert.Zero(t, rs.Nodes.Occupied())
	assert.Empty(t, h.Frames)
}

func TestSawSelfAnnounce_EnqueueFailure(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	h.EnqueueErr = state.ErrQueueFull
	rs := NewTables(t)
	err := SawSelfAnnounce(rs, h, AnnounceFrame(Sid(0xb0), 0, 0, 1000, 1200), t0)
	assert.ErrorIs(t, err, state.ErrQueueFull)
	// the observation itself is kept
	n, ferr := rs.FindNode(Sid(0xb0), false)
	require.NoError(t, ferr)
	assert.Len(t, validObservations(rs.NeighbourOf(n)), 1)
}

func TestMakeSelfAnnounceAck_NoObservations(t *testing.T) {
	rs := NewTables(t)
	n, err := rs.FindNode(Sid(0xb0), true)
	require.NoError(t, err)
	nb, err := rs.Promote(n)
	require.NoError(t, err)

	_, err = MakeSelfAnnounceAck(rs, Sid(0xa0), nb)
	assert.ErrorIs(t, err, state.ErrInvalidState)
}

func TestSawSelfAnnounceAck(t *testing.T) {
	a, b := Sid(0xa0), Sid(0xb0)
	h := NewHarness(a)
	rs := NewTables(t)
	nb := h.Hear(t, rs, b, 0, 0, 1000, 5900, t0)

	// b says it hears our interface 2
	ack := &protocol.Frame{
		Type:        protocol.SelfAnnounceAck,
		TTL:         state.AckTTL,
		Source:      b,
		Destination: a,
		NextHop:     a,
		Payload: protocol.SelfAnnounceAckPayload{
			Seq:    777,
			Scores: []protocol.InterfaceScore{{Score: 90, Interface: 2}},
		}.Marshal(),
	}
	require.NoError(t, SawSelfAnnounceAck(rs, h, ack, t0+10))
	assert.Equal(t, uint8(90), nb.Reported[2])
	assert.Equal(t, uint32(777), nb.ReportedSeq)
	assert.Equal(t, t0+10, nb.ReportedMs)
	assert.False(t, IsMonoDirectional(nb, t0+10))

	// once the ack is stale, only we hear them
	RecalcNeighbourMetrics(nb, t0+20)
	assert.True(t, IsMonoDirectional(nb, t0+10+state.FreshnessWindowMs))

	ack.Source = Sid(0xc0)
	err := SawSelfAnnounceAck(rs, h, ack, t0)
	assert.ErrorIs(t, err, state.ErrNotFound)

	ack.Source = b
	ack.Payload = []byte{0, 0, 0, 1}
	err = SawSelfAnnounceAck(rs, h, ack, t0)
	assert.ErrorIs(t, err, state.ErrMalformed)
}

func TestIsMonoDirectional_TheyHearUs(t *testing.T) {
	nb := &state.Neighbour{}
	nb.Reported[0] = 40
	nb.ReportedMs = t0
	assert.True(t, IsMonoDirectional(nb, t0))
	nb.Reported[0] = 0
	assert.False(t, IsMonoDirectional(nb, t0))
}

func TestMakeNodeAnnounce(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)
	assert.Nil(t, MakeNodeAnnounce(rs, h.Self(), 0))

	// 20 neighbours with increasing scores
	for i := range 20 {
		h.Hear(t, rs, Sid(0x20+byte(i)), 0, 0, 1000, 1000+uint32(i+1)*1000, t0)
	}
	// one that is no longer reachable
	h.Hear(t, rs, Sid(0x60), 0, 0, 0, 1000, t0)

	f := MakeNodeAnnounce(rs, h.Self(), 1)
	require.NotNil(t, f)
	assert.Equal(t, protocol.NodeAnnounce, f.Type)
	assert.True(t, f.Destination.IsBroadcast())
	assert.Equal(t, 1, f.Interface)

	p, err := protocol.ParseNodeAnnouncement(f.Payload)
	require.NoError(t, err)
	require.Len(t, p.Reports, state.MaxReportEntries)
	assert.Equal(t, Sid(0x20+19), p.Reports[0].Id)
	for i := 1; i < len(p.Reports); i++ {
		assert.GreaterOrEqual(t, p.Reports[i-1].Score, p.Reports[i].Score)
		assert.NotEqual(t, Sid(0x60), p.Reports[i].Id)
	}
}

func nodeAnnounce(src state.NodeId, reports ...protocol.NodeReport) *protocol.Frame {
	return &protocol.Frame{
		Type:        protocol.NodeAnnounce,
		TTL:         state.NodeAnnounceTTL,
		Source:      src,
		Destination: state.Broadcast,
		NextHop:     state.Broadcast,
		Payload:     protocol.NodeAnnouncement{Reports: reports}.Marshal(),
		Interface:   0,
	}
}

func TestSawNodeAnnounce(t *testing.T) {
	a, b, c := Sid(0xa0), Sid(0xb0), Sid(0xc0)
	h := NewHarness(a)
	rs := NewTables(t)

	f := nodeAnnounce(b,
		protocol.NodeReport{Id: c, Score: 200, Gateways: 0},
		protocol.NodeReport{Id: a, Score: 250, Gateways: 0},
		protocol.NodeReport{Id: b, Score: 250, Gateways: 0},
	)
	require.NoError(t, SawNodeAnnounce(rs, h, f, t0))

	cn, err := rs.FindNode(c, false)
	require.NoError(t, err)
	assert.Equal(t, state.Score(200-state.GatewayPenalty), cn.Score)
	assert.Equal(t, uint32(1), cn.Observations[cn.MostRecentObservation].Gateways)
	assert.True(t, cn.Observations[cn.MostRecentObservation].Sender == b.Prefix())
	assert.True(t, cn.IsNeighbour())

	// we do not record reports about ourselves, or about the reporter
	_, err = rs.FindNode(a, false)
	assert.ErrorIs(t, err, state.ErrNotFound)
	_, err = rs.FindNode(b, false)
	assert.ErrorIs(t, err, state.ErrNotFound)
}

func TestSawNodeAnnounce_Malformed(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)
	f := nodeAnnounce(Sid(0xb0), protocol.NodeReport{Id: Sid(0xc0), Score: 200})
	f.Payload = f.Payload[:len(f.Payload)-1]
	err := SawNodeAnnounce(rs, h, f, t0)
	assert.ErrorIs(t, err, state.ErrMalformed)
	assert.Zero(t, rs.Nodes.Occupied())
}

func TestResolveNextHop_Broadcast(t *testing.T) {
	rs := NewTables(t)
	nh, err := ResolveNextHop(rs, state.Broadcast, t0)
	require.NoError(t, err)
	assert.True(t, nh.Id.IsBroadcast())
	assert.Equal(t, protocol.AnyInterface, nh.Interface)
}

func TestResolveNextHop_Direct(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)
	b := Sid(0xb0)
	// b's interface 5 is heard on our interface 2
	h.Hear(t, rs, b, 2, 5, 1000, 5900, t0)

	nh, err := ResolveNextHop(rs, b, t0)
	require.NoError(t, err)
	assert.Equal(t, b, nh.Id)
	assert.Equal(t, 2, nh.Interface)
}

func TestResolveNextHop_NoRoute(t *testing.T) {
	h := NewHarness(Sid(0xa0))
	rs := NewTables(t)
	_, err := ResolveNextHop(rs, Sid(0xb0), t0)
	assert.ErrorIs(t, err, state.ErrNoRoute)

	// heard, but no score yet
	h.Hear(t, rs, Sid(0xb0), 0, 0, 0, 1000, t0)
	_, err = ResolveNextHop(rs, Sid(0xb0), t0)
	assert.ErrorIs(t, err, state.ErrNoRoute)

	_, err = ResolveNextHop(&state.RoutingState{}, Sid(0xb0), t0)
	assert.True(t, errors.Is(err, state.ErrInvalidState))
}

func TestResolveNextHop_ViaReporter(t *testing.T) {
	a, b, c, d := Sid(0xa0), Sid(0xb0), Sid(0xc0), Sid(0xd0)
	h := NewHarness(a)
	rs := NewTables(t)

	// we hear b well, and d poorly
	h.Hear(t, rs, b, 0, 0, 1000, 30000, t0)
	h.Hear(t, rs, d, 1, 0, 1000, 2000, t0)
	// both claim to reach c, d claims it hears c better
	require.NoError(t, SawNodeAnnounce(rs, h, nodeAnnounce(b, protocol.NodeReport{Id: c, Score: 200}), t0))
	require.NoError(t, SawNodeAnnounce(rs, h, nodeAnnounce(d, protocol.NodeReport{Id: c, Score: 250}), t0))

	nh, err := ResolveNextHop(rs, c, t0)
	require.NoError(t, err)
	assert.Equal(t, b, nh.Id)
	assert.Equal(t, 0, nh.Interface)

	// reports go stale
	_, err = ResolveNextHop(rs, c, t0+state.FreshnessWindowMs)
	assert.ErrorIs(t, err, state.ErrNoRoute)
}

func TestResolveNextHop_WeakReporter(t *testing.T) {
	a, b, c := Sid(0xa0), Sid(0xb0), Sid(0xc0)
	h := NewHarness(a)
	rs := NewTables(t)

	// 50ms of announcements is the lowest usable score
	nb := h.Hear(t, rs, b, 2, 0, 1000, 1050, t0)
	require.Equal(t, state.Score(1), nb.Scores[0])
	require.NoError(t, SawNodeAnnounce(rs, h, nodeAnnounce(b, protocol.NodeReport{Id: c, Score: 200}), t0))

	nh, err := ResolveNextHop(rs, c, t0)
	require.NoError(t, err)
	assert.Equal(t, b, nh.Id)
	assert.Equal(t, 2, nh.Interface)
}
