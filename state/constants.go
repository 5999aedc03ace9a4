package state

import "time"

const (
	MaxObservations = 8
	MaxInterfaces   = 16

	// MaxScore is the highest score that can be put on the wire
	MaxScore = 255
)

var (
	FreshnessWindowMs  = int64(200 * 1000)  // observations older than this do not count towards a score
	MaxPlausibleMs     = uint32(3600 * 1000) // interface ticks down to 1 per hour
	AckTTL             = uint8(6)            // enough to get back over a mono-directional link
	SelfAnnounceTTL    = uint8(1)
	NodeAnnounceTTL    = uint8(1)
	GatewayPenalty     = Score(16) // per gateway, applied to second-hand reports
	MaxReportEntries   = 16
	NeighboursPerMB    = 256
	MinAssociativity   = 4
	MaxAssociativity   = 8
	HashOrderBytes     = SidSize / 2 // xor-ing more than half the bytes shrinks the hash space
	DefaultTickDelay   = time.Millisecond * 500
	MinTickDelay       = time.Millisecond * 100
	AgeDelay           = time.Second * 1
	QueueCapacity      = uint64(256)
	QueueFrameLifetime = time.Second * 10
	SlowDispatch       = time.Millisecond * 4

	// DefaultPort is used for link-local UDP broadcast
	DefaultPort = uint16(4110)
)
