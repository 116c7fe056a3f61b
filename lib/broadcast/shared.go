package broadcast

import (
	"context"
	"sync"
	"time"
)

// SharedFetch lets several pollers read the composition through one
// REST request. A successful result is reused by any caller that
// arrives within maxAge of it; failures are never reused. Concurrent
// callers wait for the request in flight.
type SharedFetch struct {
	fetch  Fetch
	maxAge time.Duration
	now    func() time.Time

	mu  sync.Mutex
	raw []byte
	at  time.Time
	ok  bool
}

func NewSharedFetch(fetch Fetch, maxAge time.Duration) *SharedFetch {
	return &SharedFetch{fetch: fetch, maxAge: maxAge, now: time.Now}
}

func (s *SharedFetch) Fetch(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ok && s.now().Sub(s.at) < s.maxAge {
		return s.raw, nil
	}
	raw, err := s.fetch(ctx)
	if err != nil {
		s.ok = false
		return nil, err
	}
	s.raw, s.at, s.ok = raw, s.now(), true
	return raw, nil
}
