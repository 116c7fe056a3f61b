package streamdeck

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"showcall/lib/cuestack"
	"showcall/lib/macro"
	"showcall/lib/store"
)

// Panel is the part of Device a Deck drives.
type Panel interface {
	Model() *Model
	SetKeyImage(key int, img image.Image) error
	SetLCDImage(x, y int, img image.Image) error
	ReadInput(ch chan<- InputEvent) error
	Close() error
}

type Presets interface {
	Presets() store.Presets
}

type Executor interface {
	Run(ctx context.Context, steps []macro.Step) macro.Report
}

type Cues interface {
	State() cuestack.State
	Next(ctx context.Context) (cuestack.Outcome, error)
	Step(delta int) (cuestack.State, error)
}

type Options struct {
	Panel    Panel
	Presets  Presets
	Executor Executor
	// Cues is optional. When set, encoder 0 moves the pointer and its
	// press fires GO.
	Cues Cues
	// Lockout ignores repeat presses of the same key within the window.
	Lockout time.Duration
	Logger  *slog.Logger
}

// Deck lays presets out on the keys in document order. Keys past the
// last preset stay dark.
type Deck struct {
	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	keys     []store.Preset
	active   string
	limiters map[int]*rate.Limiter
	goLimit  *rate.Limiter
}

func NewDeck(opts Options) *Deck {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Deck{
		opts:     opts,
		log:      log.With(slog.String("component", "streamdeck")),
		limiters: map[int]*rate.Limiter{},
		goLimit:  lockout(opts.Lockout),
	}
}

func lockout(d time.Duration) *rate.Limiter {
	if d <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(d), 1)
}

// Refresh redraws every key from the current presets.
func (d *Deck) Refresh() error {
	m := d.opts.Panel.Model()
	doc := d.opts.Presets.Presets()

	d.mu.Lock()
	d.keys = doc.Presets[:min(len(doc.Presets), m.Keys)]
	keys := d.keys
	active := d.active
	d.mu.Unlock()

	for i := 0; i < m.Keys; i++ {
		img := KeyImage(m.KeySize, colorEmpty, color.White, "")
		if i < len(keys) {
			img = presetImage(m.KeySize, keys[i], keys[i].ID == active)
		}
		if err := d.opts.Panel.SetKeyImage(i, img); err != nil {
			return err
		}
	}
	if d.opts.Cues != nil {
		return d.ShowCues(d.opts.Cues.State())
	}
	return nil
}

func presetImage(size int, p store.Preset, active bool) *image.RGBA {
	bg := ParseColor(p.Color)
	if !active {
		bg = Dim(bg)
	}
	label := p.Label
	if label == "" {
		label = p.ID
	}
	if p.Hotkey != "" {
		label += "\n[" + p.Hotkey + "]"
	}
	return KeyImage(size, bg, color.White, label)
}

// ShowCues writes the cue position to the LCD strip, on panels that
// have one.
func (d *Deck) ShowCues(st cuestack.State) error {
	m := d.opts.Panel.Model()
	if m.LCDWidth == 0 {
		return nil
	}
	current, next := "-", "-"
	if st.Current != nil {
		current = st.Current.Label
	}
	if st.Next != nil {
		next = st.Next.Label
	}
	status := fmt.Sprintf("CUE %d/%d", st.CurrentIndex+1, st.Total)
	if st.Complete {
		status = "END"
	}
	img := StripImage(m.LCDWidth, m.LCDHeight, colorEmpty, color.White, []string{
		status + "\n" + st.Name,
		"NOW\n" + current,
		"NEXT\n" + next,
		"PRESS\nGO",
	})
	return d.opts.Panel.SetLCDImage(0, 0, img)
}

// Run draws the deck and handles input until ctx ends or the panel
// fails. The panel is closed on return.
func (d *Deck) Run(ctx context.Context) error {
	defer d.opts.Panel.Close()
	if err := d.Refresh(); err != nil {
		return fmt.Errorf("streamdeck: draw: %w", err)
	}

	input := make(chan InputEvent, 64)
	errc := make(chan error, 1)
	go func() { errc <- d.opts.Panel.ReadInput(input) }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errc:
			return err
		case ev := <-input:
			d.Handle(ctx, ev)
		}
	}
}

// Handle acts on one input event.
func (d *Deck) Handle(ctx context.Context, ev InputEvent) {
	switch {
	case ev.Key != nil && ev.Key.Pressed:
		d.pressKey(ctx, ev.Key.Key, ev.Time)
	case ev.Encoder != nil && ev.Encoder.Encoder == 0 && d.opts.Cues != nil:
		d.encoder(ctx, *ev.Encoder, ev.Time)
	}
}

func (d *Deck) pressKey(ctx context.Context, key int, at time.Time) {
	d.mu.Lock()
	if key < 0 || key >= len(d.keys) {
		d.mu.Unlock()
		return
	}
	p := d.keys[key]
	lim, ok := d.limiters[key]
	if !ok {
		lim = lockout(d.opts.Lockout)
		d.limiters[key] = lim
	}
	if !lim.AllowN(at, 1) {
		d.mu.Unlock()
		d.log.Debug("key press locked out", slog.Int("key", key))
		return
	}
	d.active = p.ID
	d.mu.Unlock()

	d.log.Info("running preset", slog.String("preset", p.ID), slog.Int("key", key))
	if err := d.Refresh(); err != nil {
		d.log.Warn("redraw failed", slog.String("error", err.Error()))
	}
	rep := d.opts.Executor.Run(ctx, p.Macro)
	if !rep.OK() {
		d.log.Warn("preset did not complete", slog.String("preset", p.ID), slog.Int("executed", rep.Executed))
	}
}

func (d *Deck) encoder(ctx context.Context, ev EncoderEvent, at time.Time) {
	switch {
	case ev.Delta != 0:
		step := 1
		if ev.Delta < 0 {
			step = -1
		}
		if _, err := d.opts.Cues.Step(step); err != nil {
			d.log.Warn("cue step failed", slog.String("error", err.Error()))
		}
	case ev.Pressed:
		if !d.goLimit.AllowN(at, 1) {
			d.log.Debug("go locked out")
			return
		}
		if _, err := d.opts.Cues.Next(ctx); err != nil {
			d.log.Warn("go failed", slog.String("error", err.Error()))
		}
	}
}
