package ledger

import (
	"fmt"
	"log/slog"
	"math/big"

	"github.com/encodeous/tollmesh/perf"
	"github.com/encodeous/tollmesh/state"
)

// Update is one interval's change to the balance with a neighbour.
// A positive amount means the neighbour owes us more.
type Update struct {
	From   state.Identity
	Amount *big.Int
}

func (u Update) String() string {
	return fmt.Sprintf("%s %s", u.From, u.Amount)
}

// Sink receives the updates of one accounting interval as a single batch, so the ledger never
// sees part of an interval. Send must not block.
type Sink interface {
	Send(batch []Update)
}

// SinkFunc adapts a function to a Sink
type SinkFunc func(batch []Update)

func (f SinkFunc) Send(batch []Update) {
	f(batch)
}

// ChannelSink delivers batches over a buffered channel and drops a whole batch when the buffer
// is full
type ChannelSink struct {
	C   chan []Update
	Log *slog.Logger
}

func NewChannelSink(size int, log *slog.Logger) *ChannelSink {
	return &ChannelSink{
		C:   make(chan []Update, size),
		Log: log,
	}
}

func (c *ChannelSink) Send(batch []Update) {
	select {
	case c.C <- batch:
	default:
		perf.LedgerDropped.Add(float64(len(batch)))
		if c.Log != nil {
			c.Log.Warn("ledger is not keeping up, dropped an interval", "updates", len(batch))
		}
	}
}
