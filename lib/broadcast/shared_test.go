package broadcast

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSharedFetchReusesRecentResult(t *testing.T) {
	calls := 0
	var fail error
	fetch := func(ctx context.Context) ([]byte, error) {
		calls++
		if fail != nil {
			return nil, fail
		}
		return []byte(fmt.Sprintf(`{"n":%d}`, calls)), nil
	}
	now := time.Unix(1000, 0)
	s := NewSharedFetch(fetch, 500*time.Millisecond)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	raw, err := s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(raw))

	now = now.Add(400 * time.Millisecond)
	raw, err = s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":1}`, string(raw))
	assert.Equal(t, 1, calls)

	now = now.Add(100 * time.Millisecond)
	raw, err = s.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"n":2}`, string(raw))
	assert.Equal(t, 2, calls)

	fail = errors.New("connection refused")
	now = now.Add(time.Second)
	_, err = s.Fetch(ctx)
	assert.ErrorIs(t, err, fail)
	_, err = s.Fetch(ctx)
	assert.ErrorIs(t, err, fail)
	assert.Equal(t, 4, calls)
}

func TestSharedFetchFeedsBroadcaster(t *testing.T) {
	calls, b := setupTest(t)
	shared := NewSharedFetch(b.fetch, time.Minute)
	b.fetch = shared.Fetch

	snap := b.Tick(context.Background())
	assert.True(t, snap.Connected)
	_, err := shared.Fetch(context.Background())
	require.NoError(t, err)
	b.Tick(context.Background())
	assert.EqualValues(t, 1, calls.Load())
}
