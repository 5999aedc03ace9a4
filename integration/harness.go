//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/overmesh/core"
	"github.com/encodeous/overmesh/state"
	"github.com/encodeous/tint"
	"github.com/stretchr/testify/require"
)

// Segment is a simulated broadcast domain, every datagram sent on it reaches
// every other member unless it is lost
type Segment struct {
	Name    string
	Loss    float64
	members []member
	// directed pairs that cannot hear each other
	blocked map[[2]*VirtualNode]bool
}

type member struct {
	node  *VirtualNode
	iface int
}

// Block stops to from hearing anything from on this segment
func (s *Segment) Block(from, to *VirtualNode) *Segment {
	s.blocked[[2]*VirtualNode{from, to}] = true
	return s
}

func (s *Segment) WithLoss(loss float64) *Segment {
	s.Loss = loss
	return s
}

type VirtualNode struct {
	Name   string
	Id     state.NodeId
	State  *state.State
	Router *core.OverlayRouter
	cfg    state.LocalCfg
	ifaces []*Segment
}

// VirtualHarness runs overlay nodes on their real main loops, sharing a mock
// clock and connected by in-memory segments
type VirtualHarness struct {
	Clock    *clock.Mock
	Nodes    []*VirtualNode
	Segments []*Segment
	TickMs   int
	Verbose  bool

	mu      sync.RWMutex
	rng     *rand.Rand
	loops   sync.WaitGroup
	inbound sync.WaitGroup
	started bool
}

func NewHarness() *VirtualHarness {
	mock := clock.NewMock()
	mock.Set(time.UnixMilli(1_700_000_000_000))
	return &VirtualHarness{
		Clock:  mock,
		TickMs: 100,
		rng:    rand.New(rand.NewPCG(3, 5)),
	}
}

func (v *VirtualHarness) NewSegment(name string) *Segment {
	seg := &Segment{Name: name, blocked: make(map[[2]*VirtualNode]bool)}
	v.Segments = append(v.Segments, seg)
	return seg
}

// NewNode creates a node with one interface on each of the given segments
func (v *VirtualHarness) NewNode(t *testing.T, name string, segments ...*Segment) *VirtualNode {
	t.Helper()
	key, id := state.GenerateIdentity()
	n := &VirtualNode{
		Name: name,
		Id:   id,
		cfg: state.LocalCfg{
			Key:      key,
			MemoryMB: 1,
			Port:     state.DefaultPort,
		},
	}
	for i, seg := range segments {
		n.cfg.Interfaces = append(n.cfg.Interfaces, state.InterfaceCfg{Name: fmt.Sprintf("%s-%d", name, i), TickMs: v.TickMs})
		n.ifaces = append(n.ifaces, seg)
		seg.members = append(seg.members, member{node: n, iface: i})
	}
	require.NoError(t, state.NodeConfigValidator(&n.cfg))
	v.Nodes = append(v.Nodes, n)
	return n
}

// Disconnect removes a node from a segment, as if it walked out of range
func (v *VirtualHarness) Disconnect(n *VirtualNode, seg *Segment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	seg.members = slices.DeleteFunc(seg.members, func(m member) bool {
		return m.node == n
	})
}

func (v *VirtualHarness) logger(n *VirtualNode) *slog.Logger {
	if !v.Verbose {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:        slog.LevelDebug,
		CustomPrefix: n.Name,
	}))
}

// Start initializes every node and runs its main loop
func (v *VirtualHarness) Start(t *testing.T) {
	t.Helper()
	for _, n := range v.Nodes {
		ctx, cancel := context.WithCancelCause(context.Background())
		n.State = &state.State{
			Modules: make(map[string]state.NyModule),
			Env: &state.Env{
				DispatchChannel: make(chan func(*state.State) error, 512),
				LocalCfg:        n.cfg,
				Self:            n.Id,
				Context:         ctx,
				Cancel:          cancel,
				Log:             v.logger(n),
				Clock:           v.Clock,
			},
		}
		n.Router = &core.OverlayRouter{Transmit: v.transmit(n)}
		n.State.Modules["router"] = n.Router
		require.NoError(t, n.Router.Init(n.State))
	}
	for _, n := range v.Nodes {
		v.loops.Go(func() {
			err := core.MainLoop(n.State, n.State.DispatchChannel)
			if err != nil {
				t.Errorf("%s stopped: %v", n.Name, err)
			}
		})
	}
	v.started = true
	t.Cleanup(v.Stop)
}

func (v *VirtualHarness) transmit(from *VirtualNode) func(iface int, b []byte) error {
	return func(iface int, b []byte) error {
		if iface < 0 || iface >= len(from.ifaces) {
			return fmt.Errorf("%w: %s has no interface %d", state.ErrInvalidState, from.Name, iface)
		}
		seg := from.ifaces[iface]
		// the lock also guards rng, transmit is called from every node's main loop
		v.mu.Lock()
		defer v.mu.Unlock()
		if !slices.ContainsFunc(seg.members, func(m member) bool { return m.node == from }) {
			return errors.New("not connected")
		}
		for _, m := range seg.members {
			if m.node == from || seg.blocked[[2]*VirtualNode{from, m.node}] {
				continue
			}
			if seg.Loss > 0 && v.rng.Float64() < seg.Loss {
				continue
			}
			data := append([]byte(nil), b...)
			v.inbound.Go(func() {
				m.node.State.Dispatch(func(s *state.State) error {
					return m.node.Router.HandleDatagram(m.iface, data)
				})
			})
		}
		return nil
	}
}

// Run advances the shared clock in steps until cond holds or limit has passed
func (v *VirtualHarness) Run(limit, step time.Duration, cond func() bool) bool {
	for elapsed := time.Duration(0); elapsed < limit; elapsed += step {
		v.Clock.Add(step)
		if cond() {
			return true
		}
	}
	return false
}

// Inspect runs fun on the node's main loop
func Inspect[T any](n *VirtualNode, fun func(s *state.State) (T, error)) (T, error) {
	res, err := n.State.DispatchWait(func(s *state.State) (any, error) {
		return fun(s)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// Neighbours lists the nodes n currently hears with a positive score
func (v *VirtualHarness) Neighbours(n *VirtualNode) []state.NodeId {
	ids, _ := Inspect(n, func(s *state.State) ([]state.NodeId, error) {
		ids := make([]state.NodeId, 0)
		for _, info := range core.NeighbourSummary(s.RoutingState, s.NowMs()) {
			if info.Score.Reachable() {
				ids = append(ids, info.Id)
			}
		}
		return ids, nil
	})
	return ids
}

func (v *VirtualHarness) NextHop(n, dest *VirtualNode) (core.NextHop, error) {
	return Inspect(n, func(s *state.State) (core.NextHop, error) {
		return core.ResolveNextHop(s.RoutingState, dest.Id, s.NowMs())
	})
}

// Summary is n's view of its neighbours
func (v *VirtualHarness) Summary(n *VirtualNode) []core.NeighbourInfo {
	out, _ := Inspect(n, func(s *state.State) ([]core.NeighbourInfo, error) {
		return core.NeighbourSummary(s.RoutingState, s.NowMs()), nil
	})
	return out
}

func (v *VirtualHarness) Stop() {
	if !v.started {
		return
	}
	v.started = false
	for _, n := range v.Nodes {
		n.State.Cancel(errors.New("stopping harness"))
	}
	v.loops.Wait()
	v.inbound.Wait()
}
