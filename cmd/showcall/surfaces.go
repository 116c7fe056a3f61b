package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"showcall/lib/config"
	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/macro"
	"showcall/lib/store"
	"showcall/lib/streamdeck"
	"showcall/lib/xtouch"
)

const defaultXTouchPort = "x-touch"

type surfaceDeps struct {
	store    *store.Store
	cues     *cuestack.Runner
	control  *control.Dispatcher
	executor *macro.Executor
}

// startSurfaces attaches the hardware surfaces enabled in cfg. A surface
// that is not plugged in is logged and skipped.
func startSurfaces(ctx context.Context, lifecycle *conc.WaitGroup, cfg config.Config, d surfaceDeps, log *slog.Logger) {
	if cfg.Surfaces.StreamDeck {
		startStreamDeck(ctx, lifecycle, cfg, d, log)
	}
	if cfg.Surfaces.XTouch {
		startXTouch(ctx, lifecycle, cfg, d, log)
	}
}

func startStreamDeck(ctx context.Context, lifecycle *conc.WaitGroup, cfg config.Config, d surfaceDeps, log *slog.Logger) {
	dev, err := streamdeck.Open()
	if err != nil {
		log.Warn("stream deck unavailable", slog.String("error", err.Error()))
		return
	}
	deck := streamdeck.NewDeck(streamdeck.Options{
		Panel:    dev,
		Presets:  d.store,
		Executor: d.executor,
		Cues:     d.cues,
		Lockout:  cfg.GoLockout(),
		Logger:   log,
	})
	if err := deck.Refresh(); err != nil {
		log.Warn("stream deck refresh", slog.String("error", err.Error()))
	}
	d.store.OnChange(func(file string) {
		if file != store.PresetsFile {
			return
		}
		if err := deck.Refresh(); err != nil {
			log.Warn("stream deck refresh", slog.String("error", err.Error()))
		}
	})
	unsubscribe := d.cues.Subscribe(func(st cuestack.State) {
		if err := deck.ShowCues(st); err != nil {
			log.Debug("stream deck lcd", slog.String("error", err.Error()))
		}
	})
	log.Info("stream deck attached", slog.String("model", dev.Model().Name), slog.String("serial", dev.SerialNumber()))
	lifecycle.Go(func() {
		defer unsubscribe()
		if err := deck.Run(ctx); err != nil {
			log.Warn("stream deck stopped", slog.String("error", err.Error()))
		}
	})
}

func startXTouch(ctx context.Context, lifecycle *conc.WaitGroup, cfg config.Config, d surfaceDeps, log *slog.Logger) {
	name := cfg.Surfaces.XTouchPort
	if name == "" {
		name = defaultXTouchPort
	}
	in, err := xtouch.FindInPort(name)
	if err != nil {
		log.Warn("x-touch unavailable", slog.String("error", err.Error()))
		return
	}
	var out *xtouch.Output
	if port, err := xtouch.FindOutPort(name); err != nil {
		log.Warn("x-touch output unavailable", slog.String("error", err.Error()))
	} else if out, err = xtouch.NewOutput(port, xtouch.DeviceIDXTouch); err != nil {
		log.Warn("x-touch output unavailable", slog.String("error", err.Error()))
	}

	surface := xtouch.NewSurface(xtouch.Options{
		Cues:    d.cues,
		Control: d.control,
		Output:  out,
		Lockout: cfg.GoLockout(),
		Logger:  log,
	})
	unsubscribe := d.cues.Subscribe(func(st cuestack.State) {
		if err := surface.Show(st); err != nil {
			log.Debug("x-touch display", slog.String("error", err.Error()))
		}
	})
	log.Info("x-touch attached", slog.String("port", in.String()))
	lifecycle.Go(func() {
		defer unsubscribe()
		if err := surface.Run(ctx, in); err != nil {
			log.Warn("x-touch stopped", slog.String("error", err.Error()))
		}
	})
}

func newSurfacesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "surfaces",
		Short:       "Inspect attached control surfaces",
		Annotations: map[string]string{"skipConfigLoad": "true"},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List Stream Decks and MIDI ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			decks, err := streamdeck.List()
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "stream deck: %v\n", err)
			}
			for _, info := range decks {
				rows = append(rows, []string{"streamdeck", info.Model, info.Serial})
			}
			ins, outs := xtouch.Ports()
			for _, name := range ins {
				rows = append(rows, []string{"midi in", name, ""})
			}
			for _, name := range outs {
				rows = append(rows, []string{"midi out", name, ""})
			}
			if len(rows) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No surfaces found")
				return nil
			}
			printTable(cmd.OutOrStdout(), surfaceColumns, rows)
			return nil
		},
	})
	cmd.AddCommand(newSurfacesWatchCommand())
	return cmd
}
