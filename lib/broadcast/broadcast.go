// Package broadcast shares one status poll loop among any number of
// viewers.
package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"showcall/lib/composition"
)

const DefaultInterval = time.Second

// Fetch returns the raw composition document.
type Fetch func(ctx context.Context) ([]byte, error)

// Viewer receives snapshots on C. The channel holds at most one pending
// snapshot; a newer one replaces it, so a slow viewer only ever misses
// intermediate states.
type Viewer struct {
	ID string
	C  <-chan composition.Snapshot

	ch chan composition.Snapshot
}

type Broadcaster struct {
	fetch    Fetch
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	viewers  map[string]*Viewer
	last     *composition.Snapshot
	wake     chan struct{}
	lastConn *bool
}

func New(fetch Fetch, interval time.Duration, log *slog.Logger) *Broadcaster {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		fetch:    fetch,
		interval: interval,
		log:      log.With(slog.String("component", "broadcast")),
		viewers:  map[string]*Viewer{},
		wake:     make(chan struct{}, 1),
	}
}

// Subscribe adds a viewer. It immediately receives the latest snapshot
// if one exists. The returned func removes the viewer and closes C.
func (b *Broadcaster) Subscribe() (*Viewer, func()) {
	ch := make(chan composition.Snapshot, 1)
	v := &Viewer{ID: uuid.NewString(), C: ch, ch: ch}

	b.mu.Lock()
	b.viewers[v.ID] = v
	if b.last != nil {
		ch <- *b.last
	}
	n := len(b.viewers)
	b.mu.Unlock()

	b.log.Debug("viewer joined", slog.String("viewer", v.ID), slog.Int("viewers", n))
	select {
	case b.wake <- struct{}{}:
	default:
	}

	var once sync.Once
	return v, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.viewers, v.ID)
			close(v.ch)
			n := len(b.viewers)
			b.mu.Unlock()
			b.log.Debug("viewer left", slog.String("viewer", v.ID), slog.Int("viewers", n))
		})
	}
}

func (b *Broadcaster) Viewers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.viewers)
}

// Latest returns the most recent snapshot, if any cycle has run.
func (b *Broadcaster) Latest() (composition.Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.last == nil {
		return composition.Snapshot{}, false
	}
	return *b.last, true
}

// Run polls while at least one viewer is subscribed and sleeps
// otherwise. It returns when ctx ends.
func (b *Broadcaster) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if b.Viewers() == 0 {
			select {
			case <-ctx.Done():
				return nil
			case <-b.wake:
				ticker.Reset(b.interval)
			}
		}
		b.Tick(ctx)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		case <-b.wake:
		}
	}
}

// Tick runs one poll cycle and publishes the result.
func (b *Broadcaster) Tick(ctx context.Context) composition.Snapshot {
	fctx, cancel := context.WithTimeout(ctx, max(b.interval*5, 5*time.Second))
	defer cancel()

	var snap composition.Snapshot
	raw, err := b.fetch(fctx)
	if err != nil {
		snap = composition.Degraded(err)
	} else {
		snap = composition.Normalize(raw)
	}
	b.Publish(snap)
	return snap
}

// Publish delivers snap to every viewer without blocking.
func (b *Broadcaster) Publish(snap composition.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.last = &snap
	if b.lastConn == nil || *b.lastConn != snap.Connected {
		if snap.Connected {
			b.log.Info("mixer connected", slog.String("composition", snap.CompositionName))
		} else {
			b.log.Warn("mixer disconnected", slog.String("error", snap.Error))
		}
		c := snap.Connected
		b.lastConn = &c
	}

	for _, v := range b.viewers {
		select {
		case v.ch <- snap:
			continue
		default:
		}
		// drop the stale pending snapshot and retry once
		select {
		case <-v.ch:
		default:
		}
		select {
		case v.ch <- snap:
		default:
		}
	}
}
