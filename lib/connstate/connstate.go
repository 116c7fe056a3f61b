// Package connstate tracks the health of one outbound link to the mixer.
//
// Each transport client owns exactly one Tracker and is the only writer;
// everything else reads copies through Snapshot.
package connstate

import (
	"sync"
	"time"
)

// State is an immutable view of a link's health.
type State struct {
	Connected     bool      `json:"connected"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
	LastError     string    `json:"lastError,omitempty"`
}

// Checked reports whether the link has been observed at least once.
func (s State) Checked() bool {
	return !s.LastCheckedAt.IsZero()
}

type Tracker struct {
	mu    sync.Mutex
	state State
	now   func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// SetClock replaces the time source. Tests only.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
}

func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tracker) MarkOK() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = State{Connected: true, LastCheckedAt: t.now()}
	return t.state
}

func (t *Tracker) MarkFailed(err error) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	t.state = State{Connected: false, LastCheckedAt: t.now(), LastError: msg}
	return t.state
}

// Due reports whether more than interval has elapsed since the last
// check. A link that was never checked is always due.
func (t *Tracker) Due(interval time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state.LastCheckedAt.IsZero() {
		return true
	}
	return t.now().Sub(t.state.LastCheckedAt) >= interval
}
