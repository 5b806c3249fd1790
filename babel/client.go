package babel

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/encodeous/tollmesh/perf"
	"github.com/encodeous/tollmesh/state"
)

// Source produces routing snapshots
type Source interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

// SourceFunc adapts a function to a Source
type SourceFunc func(ctx context.Context) (*Snapshot, error)

func (f SourceFunc) Snapshot(ctx context.Context) (*Snapshot, error) {
	return f(ctx)
}

// Dial opens a control connection. The context deadline, if any, applies to the whole connection.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &state.TransportError{Op: "dial " + addr, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, &state.TransportError{Op: "set deadline", Err: err}
		}
	}
	return conn, nil
}

// Client fetches one snapshot per call over a fresh connection
type Client struct {
	Addr string
	Log  *slog.Logger
}

func NewClient(addr string, log *slog.Logger) *Client {
	return &Client{Addr: addr, Log: log}
}

func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	start := time.Now()
	conn, err := Dial(ctx, c.Addr)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	// unblock reads if the context is cancelled without a deadline
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer stop()

	sess := NewSession(conn)
	g, err := sess.Start()
	if err != nil {
		return nil, contextErr(ctx, err)
	}
	snap, err := sess.ReadSnapshot()
	if err != nil {
		return nil, contextErr(ctx, err)
	}
	elapsed := time.Since(start)
	perf.SnapshotLatency.Add(float64(elapsed.Milliseconds()))
	perf.SnapshotRoutes.Add(float64(len(snap.Routes)))
	if c.Log != nil {
		c.Log.Debug("read snapshot", "daemon", g.Daemon, "routes", len(snap.Routes), "neighbours", len(snap.Neighbours), "elapsed", elapsed)
	}
	return snap, nil
}

// contextErr reports the context's error instead of the i/o timeout it caused
func contextErr(ctx context.Context, err error) error {
	var te *state.TransportError
	if ctx.Err() != nil && errors.As(err, &te) {
		return &state.TransportError{Op: te.Op, Err: ctx.Err()}
	}
	return err
}

// FetchSnapshot reads one snapshot from the daemon at addr
func FetchSnapshot(ctx context.Context, addr string) (*Snapshot, error) {
	return NewClient(addr, nil).Snapshot(ctx)
}
