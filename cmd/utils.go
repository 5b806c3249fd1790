package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/encodeous/tollmesh/core"
	"github.com/encodeous/tollmesh/state"
)

func loadSettings() (*state.Settings, error) {
	cfg, err := state.LoadSettings(state.SettingsPath)
	if err != nil {
		return nil, err
	}
	if err := state.SettingsValidator(cfg); err != nil {
		return nil, &state.ConfigurationError{Msg: err.Error()}
	}
	return cfg, nil
}

func cliLogger(cfg *state.Settings, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log, err := core.NewLogger(cfg.Name, "", level)
	if err != nil {
		panic(err)
	}
	return log
}

// tickContext bounds a one-off command the same way a scheduled tick is bounded
func tickContext(cfg *state.Settings) (context.Context, context.CancelFunc) {
	timeout := cfg.Intervals.TickTimeout
	if timeout <= 0 {
		timeout = state.TickTimeout
	}
	return context.WithTimeout(context.Background(), timeout+time.Second)
}

func fail(err error) {
	_, _ = fmt.Fprintln(os.Stderr, "Error:", err.Error())
	os.Exit(1)
}
