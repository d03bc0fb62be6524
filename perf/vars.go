package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	DispatchLatency      = metric.NewHistogram("1m1s")
	FramesPerSecond      = metric.NewCounter("10s1s")
	FrameBytesPerSecond  = metric.NewCounter("10s1s")
	FramesLostPerSecond  = metric.NewCounter("10s1s")
	TrustUpdatesPerSec   = metric.NewCounter("10s1s")
	PolicyDropsPerSecond = metric.NewCounter("10s1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("trustmesh:Frames/s", FramesPerSecond)
	expvar.Publish("trustmesh:FrameBytes/s", FrameBytesPerSecond)
	expvar.Publish("trustmesh:FramesLost/s", FramesLostPerSecond)
	expvar.Publish("trustmesh:TrustUpdates/s", TrustUpdatesPerSec)
	expvar.Publish("trustmesh:PolicyDrops/s", PolicyDropsPerSecond)
	expvar.Publish("trustmesh:DispatchLatency (µs)", DispatchLatency)
}
