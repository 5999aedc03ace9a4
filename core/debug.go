package core

import (
	"cmp"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/encodeous/overmesh/state"
	"github.com/goccy/go-yaml"
)

// NeighbourInfo is a snapshot of one neighbour, as served on /debug/neighbours
type NeighbourInfo struct {
	Id            state.NodeId `yaml:"id"`
	Slot          uint16       `yaml:"slot"`
	Score         state.Score  `yaml:"score"`
	Interface     int          `yaml:"best_interface"` // the neighbour's interface we hear best
	LastHeardMs   int64        `yaml:"last_heard_ms"`
	Mono          bool         `yaml:"mono_directional"`
	ReportedScore uint8        `yaml:"reported_score"`
}

// NeighbourSummary lists every live neighbour, best first
func NeighbourSummary(rs *state.RoutingState, nowMs int64) []NeighbourInfo {
	out := make([]NeighbourInfo, 0)
	if !rs.Initialized() {
		return out
	}
	for nb := range rs.Neighbours.All() {
		n := rs.NodeOf(nb)
		if n == nil {
			continue
		}
		best, bestIf := nb.BestScore()
		info := NeighbourInfo{
			Id:          n.Id,
			Slot:        nb.Id,
			Score:       best,
			Interface:   bestIf,
			LastHeardMs: nowMs - nb.LastObservationMs,
			Mono:        IsMonoDirectional(nb, nowMs),
		}
		for _, s := range nb.Reported {
			info.ReportedScore = max(info.ReportedScore, s)
		}
		out = append(out, info)
	}
	slices.SortStableFunc(out, func(a, b NeighbourInfo) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Slot, b.Slot)
	})
	return out
}

var running atomic.Pointer[state.Env]

func init() {
	http.HandleFunc("/debug/neighbours", serveNeighbours)
}

func serveNeighbours(w http.ResponseWriter, r *http.Request) {
	env := running.Load()
	if env == nil {
		http.Error(w, "node is not running", http.StatusServiceUnavailable)
		return
	}
	res, err := env.DispatchWait(func(s *state.State) (any, error) {
		return NeighbourSummary(s.RoutingState, s.NowMs()), nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	b, err := yaml.Marshal(res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	_, _ = w.Write(b)
}
