package perf

import (
	"expvar"
	"net/http"

	"github.com/encodeous/metric"
)

var (
	TickLatency     = metric.NewHistogram("1m1s")
	TicksFailed     = metric.NewCounter("10m10s")
	Anomalies       = metric.NewCounter("10m10s")
	DeltasEmitted   = metric.NewCounter("10m10s")
	LedgerDropped   = metric.NewCounter("10m10s")
	ExitSelections  = metric.NewCounter("1h1m")
	SnapshotRoutes  = metric.NewHistogram("10m10s")
	SnapshotLatency = metric.NewHistogram("1m1s")
)

func init() {
	http.Handle("/debug/metrics", metric.Handler(metric.Exposed))
	expvar.Publish("tollmesh:TickLatency (ms)", TickLatency)
	expvar.Publish("tollmesh:TicksFailed", TicksFailed)
	expvar.Publish("tollmesh:Anomalies", Anomalies)
	expvar.Publish("tollmesh:DeltasEmitted", DeltasEmitted)
	expvar.Publish("tollmesh:LedgerDropped", LedgerDropped)
	expvar.Publish("tollmesh:ExitSelections", ExitSelections)
	expvar.Publish("tollmesh:SnapshotRoutes", SnapshotRoutes)
	expvar.Publish("tollmesh:SnapshotLatency (ms)", SnapshotLatency)
}
