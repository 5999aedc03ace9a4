package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path"
	"reflect"
	"runtime"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/encodeous/overmesh/perf"
	"github.com/encodeous/overmesh/state"
	"github.com/encodeous/tint"
	"github.com/goccy/go-yaml"
	slogmulti "github.com/samber/slog-multi"
)

func ReadNodeConfig(nodePath string) (*state.LocalCfg, error) {
	var nodeCfg state.LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &nodeCfg)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", nodePath, err)
	}
	return &nodeCfg, nil
}

// Bootstrap reads and validates the node config, then runs the node until ctx is cancelled or a signal is received
func Bootstrap(ctx context.Context, nodePath, logPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	nodeCfg, err := ReadNodeConfig(nodePath)
	if err != nil {
		return err
	}
	if logPath != "" {
		nodeCfg.LogPath = logPath
	}
	err = state.NodeConfigValidator(nodeCfg)
	if err != nil {
		return err
	}
	return Start(ctx, *nodeCfg, level, clock.New(), nil)
}

func newLogger(ncfg state.LocalCfg, self state.NodeId, logLevel slog.Level) (*slog.Logger, error) {
	handlers := make([]slog.Handler, 0)
	handlers = append(handlers,
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:        logLevel,
			AddSource:    false,
			CustomPrefix: self.Short(),
			ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
				if attr.Key == "time" {
					return slog.Attr{}
				}
				return attr
			},
		}))

	if ncfg.LogPath != "" {
		err := os.MkdirAll(path.Dir(ncfg.LogPath), 0700)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(ncfg.LogPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0600)
		if err != nil {
			return nil, err
		}
		handlers = append(handlers, slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel}))
	}

	return slog.New(slogmulti.Fanout(handlers...)), nil
}

func Start(parent context.Context, ncfg state.LocalCfg, logLevel slog.Level, clk clock.Clock, initState **state.State) error {
	self, err := ncfg.Key.Pubkey()
	if err != nil {
		return err
	}
	logger, err := newLogger(ncfg, self, logLevel)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancelCause(parent)
	dispatch := make(chan func(env *state.State) error, 128)

	s := state.State{
		Modules: make(map[string]state.NyModule),
		Env: &state.Env{
			Context:         ctx,
			Cancel:          cancel,
			DispatchChannel: dispatch,
			LocalCfg:        ncfg,
			Self:            self,
			Log:             logger,
			Clock:           clk,
		},
	}
	if initState != nil {
		*initState = &s
	}

	s.Log.Info("init modules", "sid", self)
	err = initModules(&s)
	if err != nil {
		Stop(&s)
		return err
	}
	s.Log.Info("init modules complete")

	running.Store(s.Env)
	defer running.CompareAndSwap(s.Env, nil)

	s.Log.Info("overmesh has been initialized. To gracefully exit, send SIGINT or Ctrl+C.")

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(c)
		select {
		case <-c:
			s.Cancel(errors.New("received shutdown signal"))
		case <-ctx.Done():
			return
		}
	}()

	return MainLoop(&s, dispatch)
}

func initModules(s *state.State) error {
	link := &Link{}
	var modules []state.NyModule
	// the router must allocate its tables before the link delivers frames
	modules = append(modules, &OverlayRouter{Transmit: link.Send})
	modules = append(modules, link)

	for _, module := range modules {
		s.Modules[reflect.TypeOf(module).String()] = module
		if err := module.Init(s); err != nil {
			return err
		}
	}
	return nil
}

func MainLoop(s *state.State, dispatch <-chan func(*state.State) error) error {
	s.Log.Debug("started main loop")
	s.Started.Store(true)
	var fatal error
	for {
		select {
		case fun := <-dispatch:
			if fun == nil {
				goto endLoop
			}
			start := time.Now()
			err := fun(s)
			if err != nil {
				s.Log.Error("error occurred during dispatch: ", "error", err)
				if errors.Is(err, state.ErrAllocation) {
					fatal = err
					s.Cancel(err)
				}
			}
			elapsed := time.Since(start)
			perf.DispatchLatency.Add(float64(elapsed.Microseconds()))
			if elapsed > state.SlowDispatch {
				s.Log.Warn("dispatch took a long time!", "fun", runtime.FuncForPC(reflect.ValueOf(fun).Pointer()).Name(), "elapsed", elapsed, "len", len(dispatch))
			}
		case <-s.Context.Done():
			goto endLoop
		}
	}
endLoop:
	s.Log.Info("stopped main loop", "reason", context.Cause(s.Context).Error())
	Stop(s)
	return fatal
}

func Stop(s *state.State) {
	if s.Stopping.Swap(true) {
		return // don't stop twice
	}
	s.Cancel(context.Canceled)
	s.Log.Info("cleaning up modules")
	for moduleName, module := range s.Modules {
		err := module.Cleanup(s)
		if err != nil {
			s.Log.Error("error occurred during Stop: ", "module", moduleName, "error", err)
		}
	}
	s.Log.Info("stopped")
}
