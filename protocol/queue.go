package protocol

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/overmesh/state"
	"github.com/jellydator/ttlcache/v3"
)

type QueueId int

const (
	QueueMeshManagement QueueId = iota
	QueueOrdinary
)

type queueKey struct {
	Queue       QueueId
	Type        FrameType
	Source      state.NodeId
	Destination state.NodeId
	Interface   int
}

type queued struct {
	seq     uint64
	frame   *Frame
	expires time.Time
}

// Queue holds outbound frames until the next interface tick. A frame replaces
// any unsent frame of the same type between the same endpoints, and frames that
// are not sent within their lifetime are dropped. Lifetimes are measured on clk.
type Queue struct {
	cache    *ttlcache.Cache[queueKey, queued]
	capacity int
	lifetime time.Duration
	clk      clock.Clock
	seq      uint64
}

func NewQueue(capacity uint64, lifetime time.Duration, clk clock.Clock) *Queue {
	return &Queue{
		cache: ttlcache.New[queueKey, queued](
			ttlcache.WithTTL[queueKey, queued](ttlcache.NoTTL),
			ttlcache.WithDisableTouchOnHit[queueKey, queued](),
		),
		capacity: int(capacity),
		lifetime: lifetime,
		clk:      clk,
	}
}

func (q *Queue) expire() {
	now := q.clk.Now()
	for key, item := range q.cache.Items() {
		if !now.Before(item.Value().expires) {
			q.cache.Delete(key)
		}
	}
}

// Enqueue adds f to queue q. It returns true if f superseded an older frame.
func (q *Queue) Enqueue(id QueueId, f *Frame) (bool, error) {
	if f == nil {
		return false, fmt.Errorf("%w: nil frame", state.ErrInvalidState)
	}
	key := queueKey{
		Queue:       id,
		Type:        f.Type,
		Source:      f.Source,
		Destination: f.Destination,
		Interface:   f.Interface,
	}
	q.expire()
	old := q.cache.Get(key)
	if old == nil && q.cache.Len() >= q.capacity {
		return false, fmt.Errorf("%w: %d frames pending", state.ErrQueueFull, q.cache.Len())
	}
	q.seq++
	q.cache.Set(key, queued{seq: q.seq, frame: f, expires: q.clk.Now().Add(q.lifetime)}, ttlcache.DefaultTTL)
	return old != nil, nil
}

// Drain removes and returns the frames pending on queue id, oldest first
func (q *Queue) Drain(id QueueId) []*Frame {
	q.expire()
	pending := make([]queued, 0)
	for key, item := range q.cache.Items() {
		if key.Queue != id {
			continue
		}
		pending = append(pending, item.Value())
		q.cache.Delete(key)
	}
	slices.SortFunc(pending, func(a, b queued) int {
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]*Frame, len(pending))
	for i, p := range pending {
		out[i] = p.frame
	}
	return out
}

func (q *Queue) Len() int {
	q.expire()
	return q.cache.Len()
}
