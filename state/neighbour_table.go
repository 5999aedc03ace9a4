package state

import (
	"iter"
)

// NeighbourRef addresses a neighbour slot, validated by generation
type NeighbourRef struct {
	Id  uint16
	Gen uint32
}

// Neighbour is a node we have heard directly
type Neighbour struct {
	Id                    uint16
	Gen                   uint32
	Node                  NodeRef
	Observations          [MaxObservations]DirectObservation
	MostRecentObservation int
	LastObservationMs     int64
	Scores                [MaxInterfaces]Score

	// what the neighbour told us it hears of us, from its last ack
	Reported    [MaxInterfaces]uint8
	ReportedSeq uint32
	ReportedMs  int64

	live bool
}

func (nb *Neighbour) Ref() NeighbourRef {
	return NeighbourRef{Id: nb.Id, Gen: nb.Gen}
}

// BestScore returns the highest per-interface score and the interface it is on
func (nb *Neighbour) BestScore() (Score, int) {
	best, bestIf := Score(0), -1
	for i, s := range nb.Scores {
		if bestIf == -1 || s > best {
			best, bestIf = s, i
		}
	}
	return best, bestIf
}

// NeighbourTable is a fixed array of neighbour slots. Slot 0 is never handed out,
// so a NeighbourId of 0 always means "not a neighbour".
type NeighbourTable struct {
	slots []Neighbour
	next  uint16
	free  []uint16
	count int
}

func newNeighbourTable(capacity int) *NeighbourTable {
	return &NeighbourTable{
		slots: make([]Neighbour, capacity),
		next:  1,
		free:  make([]uint16, 0, capacity),
	}
}

// Capacity is the number of slots, including the reserved slot 0
func (t *NeighbourTable) Capacity() int {
	return len(t.slots)
}

func (t *NeighbourTable) Count() int {
	return t.count
}

func (t *NeighbourTable) Get(id uint16) *Neighbour {
	if t == nil || id == 0 || int(id) >= len(t.slots) {
		return nil
	}
	nb := &t.slots[id]
	if !nb.live {
		return nil
	}
	return nb
}

func (t *NeighbourTable) Deref(ref NeighbourRef) *Neighbour {
	nb := t.Get(ref.Id)
	if nb == nil || nb.Gen != ref.Gen {
		return nil
	}
	return nb
}

// All iterates over live neighbours in slot order
func (t *NeighbourTable) All() iter.Seq[*Neighbour] {
	return func(yield func(*Neighbour) bool) {
		for i := 1; i < int(t.next); i++ {
			if !t.slots[i].live {
				continue
			}
			if !yield(&t.slots[i]) {
				return
			}
		}
	}
}

// take returns a slot id that is not in use, or ok=false if the table is full
func (t *NeighbourTable) take() (uint16, bool) {
	if l := len(t.free); l > 0 {
		id := t.free[l-1]
		t.free = t.free[:l-1]
		return id, true
	}
	if int(t.next) < len(t.slots) {
		id := t.next
		t.next++
		return id, true
	}
	return 0, false
}

func (t *NeighbourTable) assign(id uint16, node NodeRef) *Neighbour {
	nb := &t.slots[id]
	gen := nb.Gen + 1
	*nb = Neighbour{
		Id:   id,
		Gen:  gen,
		Node: node,
		live: true,
	}
	return nb
}

func (t *NeighbourTable) release(id uint16) {
	nb := t.Get(id)
	if nb == nil {
		return
	}
	gen := nb.Gen + 1
	*nb = Neighbour{Id: id, Gen: gen}
	t.free = append(t.free, id)
	t.count--
}
