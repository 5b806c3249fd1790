package state

import (
	"context"
	"log/slog"
	"sync"
)

type Module interface {
	Init(s *State) error
	Cleanup(s *State) error
}

type State struct {
	*Env
	Modules map[string]Module
}

// Env can be read from any Goroutine
type Env struct {
	Context  context.Context
	Cancel   context.CancelCauseFunc
	Log      *slog.Logger
	Settings *SettingsHandle
	// SettingsPath is where changed settings are persisted, empty disables persistence
	SettingsPath string

	tasks sync.WaitGroup
}

// Wait blocks until every task started with RepeatTask has returned
func (e *Env) Wait() {
	e.tasks.Wait()
}
