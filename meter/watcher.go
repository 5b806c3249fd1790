package meter

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/counter"
	"github.com/encodeous/tollmesh/ledger"
	"github.com/encodeous/tollmesh/perf"
	"github.com/encodeous/tollmesh/state"
	"github.com/jellydator/ttlcache/v3"
)

// TrafficWatcher runs one accounting interval per tick and reports the result to the ledger
type TrafficWatcher struct {
	Settings *state.SettingsHandle
	Source   babel.Source
	Counters counter.Collector
	Sink     ledger.Sink
	Log      *slog.Logger

	// recently reported anomalies, so a persistent one is not logged every tick
	seen *ttlcache.Cache[string, struct{}]
}

func NewTrafficWatcher(settings *state.SettingsHandle, source babel.Source, counters counter.Collector, sink ledger.Sink, log *slog.Logger) *TrafficWatcher {
	w := &TrafficWatcher{
		Settings: settings,
		Source:   source,
		Counters: counters,
		Sink:     sink,
		Log:      log,
	}
	w.initCache()
	return w
}

func (w *TrafficWatcher) initCache() {
	if w.seen == nil {
		w.seen = ttlcache.New[string, struct{}](
			ttlcache.WithTTL[string, struct{}](state.AnomalyLogTTL),
			ttlcache.WithDisableTouchOnHit[string, struct{}](),
		)
	}
}

func (w *TrafficWatcher) Init(s *state.State) error {
	s.Log.Debug("init traffic watcher")
	if w.Log == nil {
		w.Log = s.Log.WithGroup("watcher")
	}
	w.initCache()
	go w.seen.Start()

	iv := s.Settings.Get().Intervals
	s.RepeatTask(&state.Task{
		Name:     "accounting",
		Interval: iv.Accounting,
		Timeout:  iv.TickTimeout,
		Run:      w.Watch,
	})
	return nil
}

func (w *TrafficWatcher) Cleanup(s *state.State) error {
	w.seen.Stop()
	return nil
}

// Measure computes the current interval without reporting it. Counters are still consumed.
func (w *TrafficWatcher) Measure(ctx context.Context) (Result, error) {
	// copy out before any blocking call
	own := w.Settings.Network().OwnIP
	neighbours := NeighboursFromConfig(w.Settings.Neighbours())

	snap, err := w.Source.Snapshot(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("reading routes: %w", err)
	}
	if snap.Fee() == nil {
		return Result{}, state.NewProtocolError("", "daemon did not report a local fee")
	}
	tables, err := counter.ReadAll(ctx, w.Counters)
	if err != nil {
		return Result{}, err
	}
	res := Calculate(Input{
		Snapshot:   snap,
		OwnIP:      own,
		Counters:   tables,
		Neighbours: neighbours,
	})
	w.report(res.Anomalies)
	return res, nil
}

// Watch runs one accounting tick. Either every neighbour's update is sent or none is.
func (w *TrafficWatcher) Watch(ctx context.Context) error {
	res, err := w.Measure(ctx)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("accounting tick expired before reporting: %w", err)
	}
	if len(res.Updates) > 0 {
		w.Sink.Send(res.Updates)
	}
	perf.DeltasEmitted.Add(float64(len(res.Updates)))
	if w.Log != nil {
		w.Log.Debug("reported traffic", "neighbours", len(res.Updates), "anomalies", len(res.Anomalies))
	}
	return nil
}

func (w *TrafficWatcher) report(anomalies []Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	perf.Anomalies.Add(float64(len(anomalies)))
	w.initCache()
	w.seen.DeleteExpired()
	for _, a := range anomalies {
		key := a.Anomaly()
		if w.seen.Get(key) != nil {
			continue
		}
		w.seen.Set(key, struct{}{}, ttlcache.DefaultTTL)
		if w.Log != nil {
			w.Log.Warn("could not attribute traffic", "reason", a.Kind, "dest", a.Key.Dest, "iface", a.Key.Iface, "bytes", a.Bytes, "inbound", a.Inbound)
		}
	}
}
