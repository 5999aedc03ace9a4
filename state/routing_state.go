package state

import (
	"fmt"
	"math/rand/v2"
)

type TableEvent int

const (
	NodeEvicted TableEvent = iota
	NeighbourPromoted
	NeighbourEvicted
	NeighbourDemoted
)

func (e TableEvent) String() string {
	switch e {
	case NodeEvicted:
		return "NodeEvicted"
	case NeighbourPromoted:
		return "NeighbourPromoted"
	case NeighbourEvicted:
		return "NeighbourEvicted"
	case NeighbourDemoted:
		return "NeighbourDemoted"
	}
	return fmt.Sprintf("TableEvent(%d)", int(e))
}

// RoutingState owns the node and neighbour tables. It must only be used from
// one goroutine at a time.
type RoutingState struct {
	Nodes      *NodeTable
	Neighbours *NeighbourTable
	Sizing     TableSizing
	// OnEvent is told about evictions and promotions, may be nil
	OnEvent func(ev TableEvent, id NodeId)

	rng *rand.Rand
}

func NewRoutingState(memoryMB int, rng *rand.Rand) (*RoutingState, error) {
	rs := &RoutingState{}
	if err := rs.Init(memoryMB, rng); err != nil {
		return nil, err
	}
	return rs, nil
}

// Init allocates the tables. On failure rs is left untouched.
func (rs *RoutingState) Init(memoryMB int, rng *rand.Rand) error {
	sz, err := PlanTables(memoryMB)
	if err != nil {
		return err
	}
	return rs.initSized(sz, rng)
}

func (rs *RoutingState) initSized(sz TableSizing, rng *rand.Rand) error {
	if rng == nil {
		return fmt.Errorf("%w: no random source", ErrInvalidState)
	}
	nodes := newNodeTable(sz, rng)
	neighbours := newNeighbourTable(sz.NeighbourCapacity)

	rs.Nodes = nodes
	rs.Neighbours = neighbours
	rs.Sizing = sz
	rs.rng = rng
	return nil
}

func (rs *RoutingState) Initialized() bool {
	return rs != nil && rs.Nodes != nil && rs.Neighbours != nil
}

func (rs *RoutingState) emit(ev TableEvent, id NodeId) {
	if rs.OnEvent != nil {
		rs.OnEvent(ev, id)
	}
}

// FindNode looks up a node by SID. If create is set and the node is unknown,
// it takes a free slot in the node's bin, or displaces slot 0 of the bin.
func (rs *RoutingState) FindNode(id NodeId, create bool) (*Node, error) {
	if !rs.Initialized() {
		return nil, fmt.Errorf("%w: tables not allocated", ErrInvalidState)
	}
	found, free, bin, err := rs.Nodes.lookup(id)
	if err != nil {
		return nil, err
	}
	if found != nil {
		return found, nil
	}
	if !create {
		return nil, ErrNotFound
	}

	if free == nil {
		free = &rs.Nodes.bin(bin)[0]
		if free.NeighbourId != 0 {
			rs.Neighbours.release(free.NeighbourId)
		}
		rs.emit(NodeEvicted, free.Id)
	}
	free.clear()
	free.Id = id
	free.occupied = true
	return free, nil
}

// NeighbourOf returns the neighbour entry for a node, or nil if it has none
func (rs *RoutingState) NeighbourOf(n *Node) *Neighbour {
	if n == nil || n.NeighbourId == 0 {
		return nil
	}
	nb := rs.Neighbours.Get(n.NeighbourId)
	if nb == nil || nb.Node != n.ref {
		return nil
	}
	return nb
}

// NodeOf follows a neighbour's back-reference
func (rs *RoutingState) NodeOf(nb *Neighbour) *Node {
	if nb == nil {
		return nil
	}
	return rs.Nodes.Get(nb.Node)
}

// Promote makes a node a neighbour. If every slot is in use, a random
// neighbour is evicted.
func (rs *RoutingState) Promote(n *Node) (*Neighbour, error) {
	if !rs.Initialized() {
		return nil, fmt.Errorf("%w: tables not allocated", ErrInvalidState)
	}
	if n == nil || !n.occupied {
		return nil, fmt.Errorf("%w: cannot promote an empty node slot", ErrInvalidState)
	}
	if n.NeighbourId != 0 {
		if nb := rs.NeighbourOf(n); nb != nil {
			return nb, nil
		}
		id := n.NeighbourId
		n.NeighbourId = 0
		return nil, fmt.Errorf("%w: node %s points at neighbour %d which does not point back", ErrInvalidState, n.Id.Short(), id)
	}

	t := rs.Neighbours
	id, ok := t.take()
	if ok {
		t.count++
	} else {
		id = uint16(1 + rs.rng.IntN(len(t.slots)-1))
		victim := &t.slots[id]
		if vn := rs.Nodes.Get(victim.Node); vn != nil && vn.NeighbourId == id {
			vn.NeighbourId = 0
			rs.emit(NeighbourEvicted, vn.Id)
		}
	}

	nb := t.assign(id, n.ref)
	n.NeighbourId = id
	rs.emit(NeighbourPromoted, n.Id)
	return nb, nil
}

// Demote frees a neighbour's slot, the node itself stays in the node table
func (rs *RoutingState) Demote(nb *Neighbour) {
	if nb == nil || !nb.live {
		return
	}
	if n := rs.NodeOf(nb); n != nil && n.NeighbourId == nb.Id {
		n.NeighbourId = 0
		rs.emit(NeighbourDemoted, n.Id)
	}
	rs.Neighbours.release(nb.Id)
}
