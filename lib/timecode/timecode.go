// Package timecode reports the program clip's playback position as
// SMPTE-style timecode.
package timecode

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

const DefaultFPS = 30

type Reading struct {
	Connected bool      `json:"connected"`
	Timecode  string    `json:"timecode,omitempty"`
	Frames    *int      `json:"frames,omitempty"`
	Running   bool      `json:"running"`
	Timestamp time.Time `json:"-"`
}

// Source delivers readings to registered callbacks until stopped.
type Source interface {
	Start(ctx context.Context) error
	Stop()
	OnUpdate(fn func(Reading))
	Latest() Reading
}

// Format renders ms as HH:MM:SS:FF at fps.
func Format(ms float64, fps int) string {
	if fps <= 0 {
		fps = DefaultFPS
	}
	if ms < 0 || math.IsNaN(ms) {
		ms = 0
	}
	totalFrames := int(ms * float64(fps) / 1000)
	f := totalFrames % fps
	secs := totalFrames / fps
	return fmt.Sprintf("%02d:%02d:%02d:%02d", secs/3600, (secs/60)%60, secs%60, f)
}

// hub fans readings out to callbacks. A timecode reading arriving
// within throttle of the last delivered one is dropped; connection
// changes always go through.
type hub struct {
	throttle time.Duration
	now      func() time.Time

	mu       sync.Mutex
	latest   Reading
	lastSent time.Time
	fns      []func(Reading)
}

func (h *hub) OnUpdate(fn func(Reading)) {
	h.mu.Lock()
	h.fns = append(h.fns, fn)
	h.mu.Unlock()
}

func (h *hub) Latest() Reading {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

func (h *hub) publish(r Reading) bool {
	now := time.Now()
	if h.now != nil {
		now = h.now()
	}
	r.Timestamp = now

	h.mu.Lock()
	connChanged := r.Connected != h.latest.Connected
	if !connChanged && r.Timecode != "" && now.Sub(h.lastSent) < h.throttle {
		h.mu.Unlock()
		return false
	}
	h.latest = r
	if r.Timecode != "" {
		h.lastSent = now
	}
	fns := append([]func(Reading){}, h.fns...)
	h.mu.Unlock()

	for _, fn := range fns {
		fn(r)
	}
	return true
}
