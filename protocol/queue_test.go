package protocol

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/overmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ackTo(dst state.NodeId, seq byte) *Frame {
	return &Frame{
		Type:        SelfAnnounceAck,
		TTL:         state.AckTTL,
		Source:      sid(0x20),
		Destination: dst,
		Payload:     []byte{0, 0, 0, seq, 0},
		Interface:   AnyInterface,
	}
}

func TestQueue_Supersedes(t *testing.T) {
	q := NewQueue(8, time.Minute, clock.NewMock())

	superseded, err := q.Enqueue(QueueMeshManagement, ackTo(sid(0x30), 1))
	require.NoError(t, err)
	assert.False(t, superseded)

	newer := ackTo(sid(0x30), 2)
	superseded, err = q.Enqueue(QueueMeshManagement, newer)
	require.NoError(t, err)
	assert.True(t, superseded)
	assert.Equal(t, 1, q.Len())

	out := q.Drain(QueueMeshManagement)
	require.Len(t, out, 1)
	assert.Same(t, newer, out[0])
	assert.Zero(t, q.Len())
}

func TestQueue_DrainOrderAndSeparation(t *testing.T) {
	q := NewQueue(8, time.Minute, clock.NewMock())
	a, b, c := ackTo(sid(0x30), 1), ackTo(sid(0x40), 1), ackTo(sid(0x50), 1)
	for _, f := range []*Frame{a, b} {
		_, err := q.Enqueue(QueueMeshManagement, f)
		require.NoError(t, err)
	}
	_, err := q.Enqueue(QueueOrdinary, c)
	require.NoError(t, err)

	assert.Equal(t, []*Frame{a, b}, q.Drain(QueueMeshManagement))
	assert.Empty(t, q.Drain(QueueMeshManagement))
	assert.Equal(t, []*Frame{c}, q.Drain(QueueOrdinary))
}

func TestQueue_Full(t *testing.T) {
	q := NewQueue(2, time.Minute, clock.NewMock())
	_, err := q.Enqueue(QueueMeshManagement, ackTo(sid(0x30), 1))
	require.NoError(t, err)
	_, err = q.Enqueue(QueueMeshManagement, ackTo(sid(0x40), 1))
	require.NoError(t, err)

	_, err = q.Enqueue(QueueMeshManagement, ackTo(sid(0x50), 1))
	assert.ErrorIs(t, err, state.ErrQueueFull)

	// replacing a pending frame is still allowed
	_, err = q.Enqueue(QueueMeshManagement, ackTo(sid(0x40), 2))
	assert.NoError(t, err)

	_, err = q.Enqueue(QueueMeshManagement, nil)
	assert.ErrorIs(t, err, state.ErrInvalidState)
}

func TestQueue_Expiry(t *testing.T) {
	mock := clock.NewMock()
	q := NewQueue(8, 20*time.Millisecond, mock)
	_, err := q.Enqueue(QueueMeshManagement, ackTo(sid(0x30), 1))
	require.NoError(t, err)
	mock.Add(10 * time.Millisecond)
	_, err = q.Enqueue(QueueMeshManagement, ackTo(sid(0x40), 1))
	require.NoError(t, err)

	// wall time does not matter, only the queue's clock
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 2, q.Len())

	mock.Add(10 * time.Millisecond)
	out := q.Drain(QueueMeshManagement)
	require.Len(t, out, 1)
	assert.Equal(t, sid(0x40), out[0].Destination)

	// an expired frame no longer counts against capacity
	full := NewQueue(1, 20*time.Millisecond, mock)
	_, err = full.Enqueue(QueueMeshManagement, ackTo(sid(0x30), 1))
	require.NoError(t, err)
	mock.Add(20 * time.Millisecond)
	_, err = full.Enqueue(QueueMeshManagement, ackTo(sid(0x40), 1))
	assert.NoError(t, err)
}
