package state

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
)

func SampleCfg(t *testing.T) LocalCfg {
	t.Helper()
	key, _ := GenerateIdentity()
	return LocalCfg{
		Key:      key,
		MemoryMB: 1,
		Port:     DefaultPort,
		Interfaces: []InterfaceCfg{
			{Name: "eth0"},
			{Name: "wlan0", TickMs: 250},
		},
	}
}

// SampleId builds a non-reserved SID whose bytes are all b, with a distinguishing tail
func SampleId(b byte, tail uint16) NodeId {
	var id NodeId
	for i := range id {
		id[i] = b
	}
	id[SidSize-2] = byte(tail >> 8)
	id[SidSize-1] = byte(tail)
	return id
}

func testRng() *rand.Rand {
	return rand.New(rand.NewPCG(1, 2))
}

// SmallRoutingState builds tables small enough to exercise eviction
func SmallRoutingState(t *testing.T, bins, assoc, neighbours int) *RoutingState {
	t.Helper()
	binBytes := 1
	for b := bins; b&0xffffff00 != 0; b >>= 8 {
		binBytes++
	}
	rs := &RoutingState{}
	require.NoError(t, rs.initSized(TableSizing{
		Bins:              bins,
		Associativity:     assoc,
		BinBytes:          binBytes,
		NeighbourCapacity: neighbours,
	}, testRng()))
	return rs
}

// CollidingIds returns n distinct ids that hash into the same bin
func CollidingIds(t *testing.T, rs *RoutingState, n int) []NodeId {
	t.Helper()
	ids := make([]NodeId, 0, n)
	var want uint32
	for i := 0; len(ids) < n && i < 1<<16; i++ {
		id := SampleId(0x40+byte(i>>8), uint16(i))
		bin, err := rs.Nodes.Hash(id)
		require.NoError(t, err)
		if len(ids) == 0 {
			want = bin
		}
		if bin == want {
			ids = append(ids, id)
		}
	}
	require.Len(t, ids, n)
	return ids
}
