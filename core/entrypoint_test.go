package core

import (
	"context"
	"log/slog"
	"math/big"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/counter"
	"github.com/encodeous/tollmesh/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var (
	dest      = netip.MustParseAddr("fd00::5")
	neighbour = state.Identity{MeshIP: netip.MustParseAddr("fd00::100")}
)

func testSettings() *state.Settings {
	return &state.Settings{
		Name:    "node-a",
		Network: state.NetworkSettings{OwnIP: netip.MustParseAddr("fd00::1")},
		Neighbours: []state.NeighbourCfg{
			{Identity: neighbour, Interface: "wg0"},
		},
		Exits: []state.ExitCandidate{
			{ExitIP: netip.MustParseAddr("fd00::5"), RegistrationPort: 4875},
			{ExitIP: netip.MustParseAddr("fd00::6"), RegistrationPort: 4875},
		},
		Intervals: state.IntervalSettings{
			Accounting:    20 * time.Millisecond,
			ExitSelection: 20 * time.Millisecond,
			TickTimeout:   time.Second,
		},
	}
}

func staticSource() babel.Source {
	return babel.SourceFunc(func(ctx context.Context) (*babel.Snapshot, error) {
		return &babel.Snapshot{
			LocalFee: big.NewInt(50),
			Routes: []babel.Route{{
				Prefix:    netip.PrefixFrom(dest, 128),
				Installed: true,
				Price:     big.NewInt(250),
			}},
		}, nil
	})
}

func TestStart(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	started := make(chan *state.State, 1)
	done := make(chan error, 1)
	go func() {
		done <- Start(testSettings(), slog.LevelWarn, "", &Aux{
			Source: staticSource(),
			Counters: counter.NewStaticCollector(counter.Tables{
				Input:  counter.Table{{Dest: dest, Iface: "wg0"}: 1000},
				Output: counter.Table{{Dest: dest, Iface: "wg0"}: 2000},
			}),
			OnStart: func(s *state.State) { started <- s },
		})
	}()

	s := <-started
	books := Get[*Books](s)
	// every tick reads the same counters, so the balance grows by 200000 each time
	require.Eventually(t, func() bool {
		return books.Keeper.Balance(neighbour).Cmp(big.NewInt(400000)) >= 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Zero(t, new(big.Int).Mod(books.Keeper.Balance(neighbour), big.NewInt(200000)).Sign())

	require.Eventually(t, func() bool {
		_, ok := s.Settings.CurrentExit()
		return ok
	}, 5*time.Second, 10*time.Millisecond)
	cur, _ := s.Settings.CurrentExit()
	assert.Equal(t, netip.MustParseAddr("fd00::5"), cur.ExitIP)

	s.Cancel(context.Canceled)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}

func TestStart_PersistsSelectedExit(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("os/signal.loop"))

	cfg := testSettings()
	cfg.Exits = cfg.Exits[:1]
	cfg.Intervals.Persist = 10 * time.Millisecond
	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, cfg.Write(file))

	started := make(chan *state.State, 1)
	done := make(chan error, 1)
	go func() {
		done <- Start(cfg, slog.LevelWarn, file, &Aux{
			Source:   staticSource(),
			Counters: counter.NewStaticCollector(counter.Tables{}),
			OnStart:  func(s *state.State) { started <- s },
		})
	}()
	s := <-started

	require.Eventually(t, func() bool {
		loaded, err := state.LoadSettings(file)
		return err == nil && loaded.CurrentExit != nil
	}, 5*time.Second, 10*time.Millisecond)

	s.Cancel(context.Canceled)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}

	loaded, err := state.LoadSettings(file)
	require.NoError(t, err)
	require.NotNil(t, loaded.CurrentExit)
	assert.Equal(t, netip.MustParseAddr("fd00::5"), loaded.CurrentExit.ExitIP)
	assert.Equal(t, cfg.Name, loaded.Name)
}

func TestStart_CounterSetupFails(t *testing.T) {
	cfg := testSettings()
	cfg.Counters.IpsetPath = "/nonexistent/ipset"
	err := Start(cfg, slog.LevelWarn, "", &Aux{Source: staticSource()})
	var te *state.TransportError
	require.ErrorAs(t, err, &te)
}

func TestBootstrap_InvalidSettings(t *testing.T) {
	err := Bootstrap(t.TempDir()+"/missing.yaml", "", false)
	require.Error(t, err)
}
