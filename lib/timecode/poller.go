package timecode

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"showcall/lib/composition"
)

// Poller derives timecode from the composition document: the program
// clip's transport position, read every Interval.
type Poller struct {
	hub
	fetch    func(ctx context.Context) ([]byte, error)
	interval time.Duration
	fps      int
	log      *slog.Logger

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	lastPos  float64
	lastClip composition.ClipRef
}

func NewPoller(fetch func(ctx context.Context) ([]byte, error), interval time.Duration, log *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Poller{
		hub:      hub{throttle: interval / 2},
		fetch:    fetch,
		interval: interval,
		fps:      DefaultFPS,
		log:      log.With(slog.String("component", "timecode")),
	}
}

func (p *Poller) Start(ctx context.Context) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	if p.cancel != nil {
		return nil
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.loop(ctx, p.done)
	return nil
}

func (p *Poller) Stop() {
	p.runMu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.runMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(p.interval)
	defer t.Stop()
	for {
		p.Poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Poll reads once and publishes the result.
func (p *Poller) Poll(ctx context.Context) Reading {
	raw, err := p.fetch(ctx)
	if err != nil {
		p.log.Debug("timecode poll failed", slog.String("error", err.Error()))
		r := Reading{Connected: false}
		p.publish(r)
		return r
	}
	r := p.read(raw)
	p.publish(r)
	return r
}

func (p *Poller) read(raw []byte) Reading {
	snap := composition.Normalize(raw)
	if !snap.Connected {
		return Reading{}
	}
	r := Reading{Connected: true}
	if snap.Program.IsZero() {
		return r
	}

	clip := clipNode(raw, snap.Program)
	pos, ok := composition.Number(composition.Field(clip, "transport", "position"))
	if !ok {
		return r
	}
	fps := p.fps
	if v, ok := composition.Number(composition.Field(clip, "video", "fileinfo", "framerate")); ok && v > 0 {
		fps = int(v + 0.5)
	}
	frames := int(pos * float64(fps) / 1000)
	r.Timecode = Format(pos, fps)
	r.Frames = &frames

	p.runMu.Lock()
	r.Running = p.lastClip == snap.Program && pos != p.lastPos
	p.lastClip, p.lastPos = snap.Program, pos
	p.runMu.Unlock()
	return r
}
