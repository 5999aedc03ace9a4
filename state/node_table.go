package state

import (
	"fmt"
	"math/rand/v2"
	"unsafe"
)

// NodeRef addresses a node table slot. Gen changes every time the slot is
// given to a different node, so a stale reference can be detected.
type NodeRef struct {
	Bin  uint32
	Slot uint8
	Gen  uint32
}

// Node is everything we know about a node, whether heard directly or reported to us
type Node struct {
	Id                    NodeId
	NeighbourId           uint16 // 0 if the node is not a neighbour
	MostRecentObservation int
	LastObservationMs     int64
	Score                 Score
	Observations          [MaxObservations]SecondhandObservation

	occupied bool
	ref      NodeRef
}

func (n *Node) Ref() NodeRef {
	return n.ref
}

func (n *Node) IsNeighbour() bool {
	return n.NeighbourId != 0
}

func (n *Node) clear() {
	gen := n.ref.Gen + 1
	ref := n.ref
	*n = Node{}
	n.ref = ref
	n.ref.Gen = gen
}

// NodeTable is a set-associative hash table of nodes with a fixed number of slots
type NodeTable struct {
	bins      uint32
	assoc     int
	binBytes  int
	hashBytes int
	hashOrder [SidSize]int
	slots     []Node
}

type TableSizing struct {
	Bins              int
	Associativity     int
	BinBytes          int
	NeighbourCapacity int
	Bytes             int64
}

var (
	nodeSize      = int64(unsafe.Sizeof(Node{}))
	neighbourSize = int64(unsafe.Sizeof(Neighbour{}))
)

const maxBins = 1 << 24

// SizeTables picks the largest power-of-two bin count that fits in budget
// bytes, then spends what is left on associativity. Neighbour slots are
// stored inline, so they are accounted at their full size.
func SizeTables(budget int64, neighbours int) (TableSizing, error) {
	fixed := int64(neighbours) * neighbourSize
	fits := func(bins, assoc int64) bool {
		return fixed+bins*assoc*nodeSize <= budget
	}
	if neighbours < 2 {
		return TableSizing{}, fmt.Errorf("%w: need at least 2 neighbour slots, got %d", ErrAllocation, neighbours)
	}
	if !fits(1, int64(MinAssociativity)) {
		return TableSizing{}, fmt.Errorf("%w: %d bytes cannot hold a single %d-way bin", ErrAllocation, budget, MinAssociativity)
	}

	bins, assoc := int64(1), int64(MinAssociativity)
	for assoc < int64(MaxAssociativity) {
		if bins < maxBins && fits(bins*2, assoc) {
			bins *= 2
			continue
		}
		if fits(bins, assoc+1) {
			assoc++
			continue
		}
		break
	}

	binBytes := 1
	for b := bins; b&0xffffff00 != 0; b >>= 8 {
		binBytes++
	}

	return TableSizing{
		Bins:              int(bins),
		Associativity:     int(assoc),
		BinBytes:          binBytes,
		NeighbourCapacity: neighbours,
		Bytes:             fixed + bins*assoc*nodeSize,
	}, nil
}

// PlanTables sizes the tables for a budget given in megabytes
func PlanTables(memoryMB int) (TableSizing, error) {
	if memoryMB <= 0 {
		return TableSizing{}, fmt.Errorf("%w: memory budget must be positive, got %dMB", ErrAllocation, memoryMB)
	}
	neighbours := min(NeighboursPerMB*memoryMB, 1<<16-1)
	return SizeTables(int64(memoryMB)*1024*1024, neighbours)
}

func newNodeTable(sz TableSizing, rng *rand.Rand) *NodeTable {
	t := &NodeTable{
		bins:      uint32(sz.Bins),
		assoc:     sz.Associativity,
		binBytes:  sz.BinBytes,
		hashBytes: HashOrderBytes,
		slots:     make([]Node, sz.Bins*sz.Associativity),
	}
	copy(t.hashOrder[:], rng.Perm(SidSize))
	for i := range t.slots {
		t.slots[i].ref = NodeRef{
			Bin:  uint32(i / sz.Associativity),
			Slot: uint8(i % sz.Associativity),
		}
	}
	return t
}

func (t *NodeTable) Bins() int {
	return int(t.bins)
}

func (t *NodeTable) Associativity() int {
	return t.assoc
}

// Hash xor-folds a per-process random selection of half of the SID bytes
// into a bin number
func (t *NodeTable) Hash(id NodeId) (uint32, error) {
	if t == nil || t.hashBytes == 0 {
		return 0, fmt.Errorf("%w: hash function not initialised", ErrInvalidState)
	}
	var bin uint32
	b := 0
	for i := 0; i < t.hashBytes; i++ {
		bin ^= uint32(id[t.hashOrder[i]]) << (8 * b)
		b++
		if b >= t.binBytes {
			b = 0
		}
	}
	return bin & (t.bins - 1), nil
}

func (t *NodeTable) bin(b uint32) []Node {
	start := int(b) * t.assoc
	return t.slots[start : start+t.assoc]
}

// lookup returns the matching slot if present, otherwise the first free slot in the bin (which may be nil)
func (t *NodeTable) lookup(id NodeId) (found *Node, free *Node, bin uint32, err error) {
	bin, err = t.Hash(id)
	if err != nil {
		return nil, nil, 0, err
	}
	slots := t.bin(bin)
	for i := range slots {
		n := &slots[i]
		if n.occupied {
			if n.Id == id {
				return n, nil, bin, nil
			}
		} else if free == nil {
			free = n
		}
	}
	return nil, free, bin, nil
}

// Get dereferences a NodeRef, returning nil if the slot has since been reused
func (t *NodeTable) Get(ref NodeRef) *Node {
	if t == nil || ref.Bin >= t.bins || int(ref.Slot) >= t.assoc {
		return nil
	}
	n := &t.slots[int(ref.Bin)*t.assoc+int(ref.Slot)]
	if !n.occupied || n.ref.Gen != ref.Gen {
		return nil
	}
	return n
}

// Occupied counts slots in use
func (t *NodeTable) Occupied() int {
	cnt := 0
	for i := range t.slots {
		if t.slots[i].occupied {
			cnt++
		}
	}
	return cnt
}
