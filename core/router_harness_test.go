package core

import (
	"crypto/sha256"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/encodeous/overmesh/protocol"
	"github.com/encodeous/overmesh/state"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type HarnessEvent struct {
	Message string
	Args    []any
}

func MakeEvent(msg string, args ...any) HarnessEvent {
	return HarnessEvent{
		Message: msg,
		Args:    args,
	}
}

// RouterHarness records what the algorithms ask of the router
type RouterHarness struct {
	self    state.NodeId
	actions []HarnessEvent
	Frames  []*protocol.Frame
	// EnqueueErr is returned from Enqueue if set
	EnqueueErr error
}

func NewHarness(self state.NodeId) *RouterHarness {
	return &RouterHarness{self: self}
}

func (h *RouterHarness) Self() state.NodeId {
	return h.self
}

func (h *RouterHarness) Enqueue(q protocol.QueueId, f *protocol.Frame) error {
	if h.EnqueueErr != nil {
		return h.EnqueueErr
	}
	h.actions = append(h.actions, MakeEvent("ENQUEUE", q, f.Type, f.Destination))
	h.Frames = append(h.Frames, f)
	return nil
}

func (h *RouterHarness) Log(event RouterEvent, desc string, args ...any) {
	x := make([]any, 0)
	x = append(x, event)
	x = append(x, desc)
	x = append(x, args...)
	h.actions = append(h.actions, MakeEvent("LOG", x...))
}

type HarnessEvents []HarnessEvent

func (h HarnessEvents) String() string {
	out := make([]string, 0)
	for _, action := range h {
		cur := action.Message
		for _, arg := range action.Args {
			cur += " " + fmt.Sprint(arg)
		}
		out = append(out, cur)
	}
	slices.Sort(out)
	return strings.Join(out, "\n")
}

func (h *RouterHarness) GetActions() HarnessEvents {
	x := make([]HarnessEvent, 0)
	for _, action := range h.actions {
		if action.Message != "LOG" {
			x = append(x, action)
		}
	}
	h.actions = make([]HarnessEvent, 0)
	return x
}

// GetLogs returns the router events logged so far, without clearing them
func (h *RouterHarness) GetLogs() []RouterEvent {
	x := make([]RouterEvent, 0)
	for _, action := range h.actions {
		if action.Message == "LOG" {
			x = append(x, action.Args[0].(RouterEvent))
		}
	}
	return x
}

func (e HarnessEvents) contains(msg string, args ...any) bool {
	for _, event := range e {
		if event.Message == msg {
			if len(event.Args) >= len(args) {
				match := true
				for i, arg := range args {
					if !cmp.Equal(event.Args[i], arg) {
						match = false
						break
					}
				}
				if match {
					return true
				}
			}
		}
	}
	return false
}

func (e HarnessEvents) AssertContains(t *testing.T, msg string, args ...any) {
	if e.contains(msg, args...) {
		return
	}
	t.Fatal("Expected event not found: ", msg, " with args: ", args, " in ", e)
}

func (e HarnessEvents) AssertNotContains(t *testing.T, msg string, args ...any) {
	if e.contains(msg, args...) {
		t.Fatal("Unexpected event found: ", msg, " with args: ", args, " in ", e)
	}
}

// Sid builds a SID that starts with b, so b must be at least 0x10. The rest is
// a digest of b, which spreads the SIDs over the node table.
func Sid(b byte) state.NodeId {
	id := state.NodeId(sha256.Sum256([]byte{b}))
	id[0] = b
	return id
}

func NewTables(t *testing.T) *state.RoutingState {
	t.Helper()
	rs, err := state.NewRoutingState(1, rand.New(rand.NewPCG(7, 11)))
	require.NoError(t, err)
	return rs
}

// AnnounceFrame is a self-announcement from src, as received on our interface iface
func AnnounceFrame(src state.NodeId, iface int, senderIf uint8, s1, s2 uint32) *protocol.Frame {
	f := MakeSelfAnnounce(src, int(senderIf), s1, s2)
	f.Interface = iface
	return f
}

// Hear feeds a self-announcement through the protocol, failing the test on error
func (h *RouterHarness) Hear(t *testing.T, rs *state.RoutingState, src state.NodeId, iface int, senderIf uint8, s1, s2 uint32, nowMs int64) *state.Neighbour {
	t.Helper()
	require.NoError(t, SawSelfAnnounce(rs, h, AnnounceFrame(src, iface, senderIf, s1, s2), nowMs))
	n, err := rs.FindNode(src, false)
	require.NoError(t, err)
	nb := rs.NeighbourOf(n)
	require.NotNil(t, nb)
	return nb
}
