package counter

import (
	"context"
	"fmt"
	"net/netip"
	"sort"

	"golang.org/x/sync/errgroup"
)

// Direction selects one of the four traffic tables
type Direction int

const (
	Input Direction = iota
	Output
	ForwardInput
	ForwardOutput
)

var Directions = []Direction{Input, Output, ForwardInput, ForwardOutput}

func (d Direction) String() string {
	switch d {
	case Input:
		return "input"
	case Output:
		return "output"
	case ForwardInput:
		return "fwd_input"
	case ForwardOutput:
		return "fwd_output"
	}
	return fmt.Sprintf("direction(%d)", int(d))
}

// Key identifies traffic to or from Dest seen on the local interface Iface
type Key struct {
	Dest  netip.Addr
	Iface string
}

func (k Key) String() string {
	return fmt.Sprintf("%s%%%s", k.Dest, k.Iface)
}

// Table maps a key to the number of bytes counted in one interval
type Table map[Key]uint64

func (t Table) Clone() Table {
	out := make(Table, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Keys returns the keys ordered by interface, then address
func (t Table) Keys() []Key {
	keys := make([]Key, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Iface != keys[j].Iface {
			return keys[i].Iface < keys[j].Iface
		}
		return keys[i].Dest.Less(keys[j].Dest)
	})
	return keys
}

// Merge sums two tables by key. Neither input is modified.
func Merge(a, b Table) Table {
	out := make(Table, len(a)+len(b))
	for k, v := range a {
		out[k] += v
	}
	for k, v := range b {
		out[k] += v
	}
	return out
}

// Tables holds one read of all four directions
type Tables struct {
	Input         Table
	Output        Table
	ForwardInput  Table
	ForwardOutput Table
}

func (t *Tables) Get(d Direction) Table {
	switch d {
	case Input:
		return t.Input
	case Output:
		return t.Output
	case ForwardInput:
		return t.ForwardInput
	case ForwardOutput:
		return t.ForwardOutput
	}
	return nil
}

func (t *Tables) Set(d Direction, tbl Table) {
	switch d {
	case Input:
		t.Input = tbl
	case Output:
		t.Output = tbl
	case ForwardInput:
		t.ForwardInput = tbl
	case ForwardOutput:
		t.ForwardOutput = tbl
	}
}

// Inbound is everything received on an interface, locally destined or forwarded
func (t *Tables) Inbound() Table {
	return Merge(t.Input, t.ForwardInput)
}

// Outbound is everything sent out of an interface, locally originated or forwarded
func (t *Tables) Outbound() Table {
	return Merge(t.Output, t.ForwardOutput)
}

// Collector reads the byte counters for one direction. A read does not change the counters,
// ResetCounters starts the next interval from zero.
type Collector interface {
	ReadCounters(ctx context.Context, d Direction) (Table, error)
	ResetCounters(ctx context.Context, d Direction) error
}

// ReadAll reads every direction concurrently. If any read fails no tables are returned and
// no counter is reset, so the bytes are picked up by the next read. The counters are reset
// only once all four directions have been read.
func ReadAll(ctx context.Context, c Collector) (Tables, error) {
	results := make([]Table, len(Directions))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range Directions {
		g.Go(func() error {
			tbl, err := c.ReadCounters(gctx, d)
			if err != nil {
				return fmt.Errorf("reading %s counters: %w", d, err)
			}
			results[i] = tbl
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tables{}, err
	}

	g, gctx = errgroup.WithContext(ctx)
	for _, d := range Directions {
		g.Go(func() error {
			if err := c.ResetCounters(gctx, d); err != nil {
				return fmt.Errorf("resetting %s counters: %w", d, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Tables{}, err
	}

	var out Tables
	for i, d := range Directions {
		out.Set(d, results[i])
	}
	return out, nil
}
