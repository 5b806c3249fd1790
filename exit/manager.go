package exit

import (
	"context"
	"log/slog"

	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/perf"
	"github.com/encodeous/tollmesh/state"
)

// Manager keeps a gateway selected. Once an exit is chosen it is kept until it is cleared,
// even if a cheaper one shows up later.
type Manager struct {
	Settings *state.SettingsHandle
	Source   babel.Source
	Log      *slog.Logger
}

func NewManager(settings *state.SettingsHandle, source babel.Source, log *slog.Logger) *Manager {
	return &Manager{Settings: settings, Source: source, Log: log}
}

func (m *Manager) Init(s *state.State) error {
	s.Log.Debug("init exit manager")
	if m.Log == nil {
		m.Log = s.Log.WithGroup("exit")
	}
	iv := s.Settings.Get().Intervals
	s.RepeatTask(&state.Task{
		Name:     "exit selection",
		Interval: iv.ExitSelection,
		Timeout:  iv.TickTimeout,
		Run:      m.Tick,
	})
	return nil
}

func (m *Manager) Cleanup(s *state.State) error {
	return nil
}

// Select chooses an exit if none is active. It reports the active exit and whether this call
// installed it.
func (m *Manager) Select(ctx context.Context) (state.ExitCandidate, bool, error) {
	if cur, ok := m.Settings.CurrentExit(); ok {
		return cur, false, nil
	}
	exits := m.Settings.Exits()
	if len(exits) == 0 {
		m.log().Debug("no exit available yet")
		return state.ExitCandidate{}, false, nil
	}
	chosen, err := ChooseBestExit(ctx, exits, m.Source)
	if err != nil {
		return state.ExitCandidate{}, false, err
	}
	if !m.Settings.SetCurrentExit(chosen) {
		// someone else selected one while we were reading routes
		cur, _ := m.Settings.CurrentExit()
		return cur, false, nil
	}
	perf.ExitSelections.Add(1)
	m.log().Info("selected exit", "exit", chosen.String(), "candidates", len(exits))
	return chosen, true, nil
}

func (m *Manager) Tick(ctx context.Context) error {
	_, _, err := m.Select(ctx)
	return err
}

func (m *Manager) log() *slog.Logger {
	if m.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Log
}
