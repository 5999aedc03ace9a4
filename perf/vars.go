package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency        = metric.NewHistogram("1m1s")
	SentFramesPerSecond    = metric.NewCounter("10s1s")
	RecvFramesPerSecond    = metric.NewCounter("10s1s")
	SentBytesPerSecond     = metric.NewCounter("10s1s")
	RecvBytesPerSecond     = metric.NewCounter("10s1s")
	SelfAnnouncesPerSecond = metric.NewCounter("10s1s")
	AcksQueued             = metric.NewCounter("1m1s")
	MalformedFrames        = metric.NewCounter("1m1s")
	DroppedFrames          = metric.NewCounter("1m1s")
	NodeEvictions          = metric.NewCounter("1m1s")
	NeighbourEvictions     = metric.NewCounter("1m1s")
	NeighbourDemotions     = metric.NewCounter("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))

	expvar.Publish("overmesh:SentFrames/s", SentFramesPerSecond)
	expvar.Publish("overmesh:RecvFrames/s", RecvFramesPerSecond)
	expvar.Publish("overmesh:SentBytes/s", SentBytesPerSecond)
	expvar.Publish("overmesh:RecvBytes/s", RecvBytesPerSecond)
	expvar.Publish("overmesh:SelfAnnounces/s", SelfAnnouncesPerSecond)
	expvar.Publish("overmesh:AcksQueued", AcksQueued)
	expvar.Publish("overmesh:MalformedFrames", MalformedFrames)
	expvar.Publish("overmesh:DroppedFrames", DroppedFrames)
	expvar.Publish("overmesh:NodeEvictions", NodeEvictions)
	expvar.Publish("overmesh:NeighbourEvictions", NeighbourEvictions)
	expvar.Publish("overmesh:NeighbourDemotions", NeighbourDemotions)
	expvar.Publish("overmesh:DispatchLatency (µs)", DispatchLatency)
}
