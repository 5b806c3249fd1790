package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path"
	"reflect"
	"syscall"

	"github.com/encodeous/tint"
	"github.com/encodeous/tollmesh/babel"
	"github.com/encodeous/tollmesh/counter"
	"github.com/encodeous/tollmesh/exit"
	"github.com/encodeous/tollmesh/meter"
	"github.com/encodeous/tollmesh/state"
	slogmulti "github.com/samber/slog-multi"
)

// Aux replaces the external collaborators of a node. Nil fields use the real ones.
type Aux struct {
	Source   babel.Source
	Counters counter.Collector
	// OnStart is called once every module is initialized
	OnStart func(s *state.State)
}

// DebugAddr, if set, serves /debug/metrics and /debug/vars
var DebugAddr string

func setupDebugging(log *slog.Logger) {
	if DebugAddr == "" {
		return
	}
	go func() {
		log.Info("serving debug endpoints", "addr", DebugAddr)
		if err := http.ListenAndServe(DebugAddr, nil); err != nil {
			log.Error("debug server stopped", "error", err)
		}
	}()
}

// NewLogger builds the console logger, and a file logger if logPath is set
func NewLogger(name, logPath string, level slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        level,
			AddSource:    false,
			CustomPrefix: name,
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if logPath != "" {
		err := os.MkdirAll(path.Dir(logPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(logPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), nil
}

// Components returns the routing daemon client and the counter reader described by cfg
func Components(cfg *state.Settings, log *slog.Logger) (babel.Source, *counter.IpsetCollector) {
	return babel.NewClient(cfg.Network.BabelAddr, log.WithGroup("babel")),
		counter.NewIpsetCollector(cfg.Counters, log.WithGroup("counters"))
}

// Bootstrap loads the settings file and runs the node until it is told to stop
func Bootstrap(settingsPath, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	cfg, err := state.LoadSettings(settingsPath)
	if err != nil {
		return err
	}
	if logPath != "" {
		cfg.LogPath = logPath
	}
	if err := state.SettingsValidator(cfg); err != nil {
		return &state.ConfigurationError{Msg: err.Error()}
	}
	return Start(cfg, level, settingsPath, nil)
}

// Start runs a node with the given settings until SIGINT, SIGTERM or the context is cancelled.
// Settings changed at runtime are written back to settingsPath, unless it is empty.
func Start(cfg *state.Settings, level slog.Level, settingsPath string, aux *Aux) error {
	cfg.ApplyDefaults()
	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	logger, err := NewLogger(cfg.Name, cfg.LogPath, level)
	if err != nil {
		return err
	}
	setupDebugging(logger)

	s := state.State{
		Modules: make(map[string]state.Module),
		Env: &state.Env{
			Context:      ctx,
			Cancel:       cancel,
			Log:          logger,
			Settings:     state.NewSettingsHandle(cfg),
			SettingsPath: settingsPath,
		},
	}
	if aux == nil {
		aux = &Aux{}
	}

	// the baseline is taken before any module can change the settings
	var persister *state.Persister
	if settingsPath != "" {
		persister, err = s.Settings.NewPersister(settingsPath, s.Log)
		if err != nil {
			return err
		}
	}

	s.Log.Info("init modules")
	err = initModules(&s, aux)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	if persister != nil {
		s.Go(func(ctx context.Context) {
			persister.Run(ctx, cfg.Intervals.Persist)
		})
	}
	if aux.OnStart != nil {
		aux.OnStart(&s)
	}

	s.Log.Info("tollmesh has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(c)
	select {
	case <-c:
		s.Cancel(errors.New("received shutdown signal"))
	case <-ctx.Done():
	}
	s.Log.Info("stopping", "reason", context.Cause(ctx).Error())
	Stop(&s)
	return nil
}

func initModules(s *state.State, aux *Aux) error {
	cfg := s.Settings.Get()
	source, ipset := Components(cfg, s.Log)
	var counters counter.Collector = ipset
	if aux.Source != nil {
		source = aux.Source
	}
	if aux.Counters != nil {
		counters = aux.Counters
	} else if err := ipset.Init(s.Context); err != nil {
		return fmt.Errorf("failed to create counter sets: %w", err)
	}

	books := NewBooks(s.Env)
	var modules []state.Module
	modules = append(modules, books)
	modules = append(modules, meter.NewTrafficWatcher(s.Settings, source, counters, books.Sink, s.Log.WithGroup("watcher")))
	modules = append(modules, exit.NewManager(s.Settings, source, s.Log.WithGroup("exit")))

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

// Stop cancels every task, waits for them to return and cleans up the modules
func Stop(s *state.State) {
	s.Cancel(context.Canceled)
	s.Wait()
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
