package xtouch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"golang.org/x/time/rate"

	"showcall/lib/control"
	"showcall/lib/cuestack"
)

// Transport buttons in the X-Touch Mackie layout.
const (
	ButtonRewind      = 91
	ButtonFastForward = 92
	ButtonStop        = 93
	ButtonPlay        = 94
)

type Cues interface {
	State() cuestack.State
	Next(ctx context.Context) (cuestack.Outcome, error)
	Step(delta int) (cuestack.State, error)
}

type Clearer interface {
	Clear() control.Result
}

type Options struct {
	Cues    Cues
	Control Clearer
	Output  *Output
	// Lockout drops GO presses that follow an accepted one within the
	// window.
	Lockout time.Duration
	Logger  *slog.Logger
}

// Surface maps PLAY and foot switch 1 to GO, REWIND and FAST FORWARD
// and the jog wheel to pointer moves, and STOP to clear. Scribble
// strips 1 and 2 show the current and next cue.
type Surface struct {
	opts   Options
	log    *slog.Logger
	goRate *rate.Limiter
}

func NewSurface(opts Options) *Surface {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if opts.Lockout > 0 {
		lim = rate.NewLimiter(rate.Every(opts.Lockout), 1)
	}
	return &Surface{opts: opts, log: log.With(slog.String("component", "xtouch")), goRate: lim}
}

// Run listens on in until ctx ends.
func (s *Surface) Run(ctx context.Context, in drivers.In) error {
	events := make(chan Event, 64)
	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if ev := Decode(msg); ev != nil {
			select {
			case events <- ev:
			default:
				s.log.Warn("input dropped", slog.String("event", ev.String()))
			}
		}
	})
	if err != nil {
		return fmt.Errorf("xtouch: listen: %w", err)
	}
	defer stop()

	if err := s.Show(s.opts.Cues.State()); err != nil {
		s.log.Warn("display update failed", slog.String("error", err.Error()))
	}
	s.log.Info("listening", slog.String("port", in.String()))

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			s.Handle(ctx, ev, time.Now())
		}
	}
}

// Handle acts on one decoded event received at the given time.
func (s *Surface) Handle(ctx context.Context, ev Event, at time.Time) {
	s.log.Debug("input", slog.String("event", ev.String()))
	switch e := ev.(type) {
	case ButtonEvent:
		if !e.Pressed {
			return
		}
		switch e.Button {
		case ButtonPlay:
			s.fireGo(ctx, at)
		case ButtonRewind:
			s.step(-1)
		case ButtonFastForward:
			s.step(1)
		case ButtonStop:
			if res := s.opts.Control.Clear(); !res.OK {
				s.log.Warn("clear failed", slog.String("error", res.Error))
			}
		}
	case FootSwitchEvent:
		if e.Pressed && e.Switch == 1 {
			s.fireGo(ctx, at)
		}
	case JogWheelEvent:
		if e.Clockwise {
			s.step(1)
		} else {
			s.step(-1)
		}
	case EncoderEvent:
		if e.Encoder == 0 && e.Delta != 0 {
			s.step(e.Delta)
		}
	}
}

func (s *Surface) fireGo(ctx context.Context, at time.Time) {
	if !s.goRate.AllowN(at, 1) {
		s.log.Debug("go locked out")
		return
	}
	out, err := s.opts.Cues.Next(ctx)
	if err != nil {
		s.log.Warn("go failed", slog.String("error", err.Error()), slog.Int("cue", out.Index))
	}
}

func (s *Surface) step(delta int) {
	if _, err := s.opts.Cues.Step(delta); err != nil {
		s.log.Warn("cue step failed", slog.String("error", err.Error()))
	}
}

// Show writes the cue position to the scribble strips and lights PLAY
// while cues remain.
func (s *Surface) Show(st cuestack.State) error {
	out := s.opts.Output
	if out == nil {
		return nil
	}
	current, next := "-", "-"
	if st.Current != nil {
		current = st.Current.Label
	}
	if st.Next != nil {
		next = st.Next.Label
	}

	color, play := ColorGreen, LEDOn
	if st.Complete {
		color, play = ColorRed, LEDOff
	}
	if err := out.SetLCD(0, color, fmt.Sprintf("CUE %d", st.CurrentIndex+1), current); err != nil {
		return err
	}
	if err := out.SetLCD(1, ColorCyan, "NEXT", next); err != nil {
		return err
	}
	return out.SetButtonLED(ButtonPlay, play)
}
