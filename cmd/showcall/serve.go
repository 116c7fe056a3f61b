package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"showcall/lib/broadcast"
	"showcall/lib/config"
	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/httpapi"
	"showcall/lib/macro"
	"showcall/lib/osc"
	"showcall/lib/resolume"
	"showcall/lib/store"
	"showcall/lib/timecode"
)

const (
	lockFileName    = "showcall.lock"
	shutdownTimeout = 5 * time.Second
)

type serveOptions struct {
	mock       bool
	uiDir      string
	runAndExit string
}

func newServeCommand(ctx *commandContext) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log, err := ctx.logger()
			if err != nil {
				return err
			}
			defer midi.CloseDriver()

			lock := flock.New(filepath.Join(cfg.Paths.DataDir, lockFileName))
			if err := os.MkdirAll(cfg.Paths.DataDir, 0o755); err != nil {
				return fmt.Errorf("create data directory: %w", err)
			}
			ok, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("acquire lock: %w", err)
			}
			if !ok {
				return errors.New("another showcall server is already running for this data directory")
			}
			defer lock.Unlock()

			sigCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			current := *cfg
			for {
				restart, err := serveOnce(sigCtx, current, ctx.configPath, opts, log)
				if err != nil || !restart {
					return err
				}
				next, _, _, err := config.Load(ctx.configPath)
				if err != nil {
					return fmt.Errorf("reload config: %w", err)
				}
				current = *next
				log.Info("restarting with saved settings")
			}
		},
	}

	cmd.Flags().BoolVar(&opts.mock, "mock", false, "Use a built-in fake mixer instead of Resolume")
	cmd.Flags().StringVar(&opts.uiDir, "ui", "", "Directory with the browser UI to serve at /")
	cmd.Flags().StringVar(&opts.runAndExit, "run-and-exit", "", "Run this command once the server is up, then exit with its status")
	return cmd
}

// serveOnce runs every component until ctx ends, a settings save asks
// for a restart, or the run-and-exit command finishes.
func serveOnce(parent context.Context, cfg config.Config, cfgPath string, opts serveOptions, log *slog.Logger) (bool, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	if opts.uiDir != "" {
		cfg.Server.UIDir = opts.uiDir
	}
	mixerCfg := cfg.Resolume
	if opts.mock || cfg.Resolume.Mock {
		mock, err := startMockMixer(log)
		if err != nil {
			return false, err
		}
		defer mock.Close()
		mixerCfg.Host = "127.0.0.1"
		mixerCfg.RestPort = mock.rest.Port()
		mixerCfg.OSCPort = mock.osc.Port()
		mixerCfg.OSCLocalPort = 0
		log.Info("mock mixer running", slog.Int("rest_port", mixerCfg.RestPort), slog.Int("osc_port", mixerCfg.OSCPort))
	}

	rest := resolume.New(resolume.Options{
		Host:          mixerCfg.Host,
		Port:          mixerCfg.RestPort,
		Timeout:       cfg.RequestTimeout(),
		CheckInterval: cfg.ConnectionCheckInterval(),
		Logger:        log,
	})
	oscClient, err := osc.Dial(ctx, osc.Options{
		Host:      mixerCfg.Host,
		Port:      mixerCfg.OSCPort,
		LocalPort: mixerCfg.OSCLocalPort,
		Logger:    log,
	})
	if err != nil {
		return false, err
	}
	defer oscClient.Close()

	st, err := store.Open(cfg.Paths.DataDir, log)
	if err != nil {
		return false, err
	}
	dispatcher := control.NewDispatcher(oscClient, log)
	executor := macro.NewExecutor(dispatcher, log)
	cues := cuestack.NewRunner(st, st, executor, log)
	st.OnChange(func(file string) {
		if file == store.CueStackFile {
			cues.Refresh()
		}
	})
	// one composition read per interval serves both pollers
	compFetch := broadcast.NewSharedFetch(rest.Composition, cfg.PollInterval()/2)
	bc := broadcast.New(compFetch.Fetch, cfg.PollInterval(), log)

	var tc timecode.Source
	if cfg.Timecode.Source == config.TimecodePoll {
		poller := timecode.NewPoller(compFetch.Fetch, cfg.PollInterval(), log)
		if err := poller.Start(ctx); err != nil {
			return false, err
		}
		defer poller.Stop()
		tc = poller
	}

	var restart atomic.Bool
	api := httpapi.New(httpapi.Deps{
		Config:      cfg,
		ConfigPath:  cfgPath,
		Mixer:       rest,
		OSC:         oscClient,
		Dispatcher:  dispatcher,
		Executor:    executor,
		Store:       st,
		Cues:        cues,
		Broadcaster: bc,
		Timecode:    tc,
		Restart: func() {
			restart.Store(true)
			cancel()
		},
		Logger: log,
	})

	ln, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return false, fmt.Errorf("listen on %s: %w", cfg.ListenAddr(), err)
	}
	server := &http.Server{
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	var lifecycle conc.WaitGroup
	lifecycle.Go(func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", slog.String("error", err.Error()))
			cancel()
		}
	})
	lifecycle.Go(func() { _ = bc.Run(ctx) })
	lifecycle.Go(func() {
		if err := st.Watch(ctx); err != nil {
			log.Warn("document watch stopped", slog.String("error", err.Error()))
		}
	})
	startSurfaces(ctx, &lifecycle, cfg, surfaceDeps{store: st, cues: cues, control: dispatcher, executor: executor}, log)

	log.Info("showcall listening",
		slog.String("addr", ln.Addr().String()),
		slog.String("resolume", rest.BaseURL()),
		slog.String("osc", oscClient.Target()),
		slog.String("data_dir", cfg.Paths.DataDir))

	var runErr error
	if fields := strings.Fields(opts.runAndExit); len(fields) > 0 {
		runErr = runAndExit(ctx, fields)
		cancel()
	}
	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", slog.String("error", err.Error()))
		server.Close()
	}
	lifecycle.Wait()
	log.Info("showcall stopped")

	if runErr != nil {
		return false, runErr
	}
	return restart.Load(), nil
}

func runAndExit(ctx context.Context, fields []string) error {
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("run-and-exit: %w", err)
	}
	return nil
}

// mockMixer stands in for Resolume: OSC commands received on the UDP
// mock are applied to the composition the REST mock serves.
type mockMixer struct {
	rest *resolume.MockServer
	osc  *osc.MockServer
}

func startMockMixer(log *slog.Logger) (*mockMixer, error) {
	rest, err := resolume.NewMockServer(resolume.MockComposition())
	if err != nil {
		return nil, fmt.Errorf("start mock mixer: %w", err)
	}
	oscSrv, err := osc.NewMockServer()
	if err != nil {
		rest.Close()
		return nil, fmt.Errorf("start mock mixer: %w", err)
	}
	oscSrv.HandleFunc(func(m osc.Message) {
		if !rest.Apply(m.Address) {
			log.Debug("mock mixer ignored message", slog.String("address", m.Address))
		}
	})
	return &mockMixer{rest: rest, osc: oscSrv}, nil
}

func (m *mockMixer) Close() {
	m.osc.Close()
	m.rest.Close()
}
