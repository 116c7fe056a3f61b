package timecode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/resolume"
)

func TestFormat(t *testing.T) {
	assert.Equal(t, "00:00:00:00", Format(0, 30))
	assert.Equal(t, "00:00:01:15", Format(1500, 30))
	assert.Equal(t, "01:01:01:12", Format((3661*1000)+500, 25))
	assert.Equal(t, "00:00:00:00", Format(-10, 0))
}

func playingComposition(pos float64) map[string]any {
	doc := resolume.MockComposition()
	layer := doc["layers"].([]any)[0].(map[string]any)
	clip := layer["clips"].([]any)[1].(map[string]any)
	clip["transport"] = map[string]any{"position": map[string]any{"value": pos}}
	return doc
}

func TestPollerReadsProgramClip(t *testing.T) {
	var mu sync.Mutex
	pos := 2500.0
	fetch := func(ctx context.Context) ([]byte, error) {
		mu.Lock()
		defer mu.Unlock()
		return json.Marshal(playingComposition(pos))
	}
	p := NewPoller(fetch, time.Second, nil)

	r := p.Poll(context.Background())
	assert.True(t, r.Connected)
	assert.Equal(t, "00:00:02:15", r.Timecode)
	assert.Equal(t, 75, *r.Frames)
	assert.False(t, r.Running)

	mu.Lock()
	pos = 3000
	mu.Unlock()
	r = p.read(mustFetch(t, fetch))
	assert.True(t, r.Running)
}

func mustFetch(t *testing.T, fetch func(context.Context) ([]byte, error)) []byte {
	t.Helper()
	raw, err := fetch(context.Background())
	require.NoError(t, err)
	return raw
}

func TestPollerFetchError(t *testing.T) {
	p := NewPoller(func(ctx context.Context) ([]byte, error) {
		return nil, errors.New("down")
	}, time.Second, nil)

	r := p.Poll(context.Background())
	assert.False(t, r.Connected)
	assert.Empty(t, r.Timecode)
}

func TestPollerStartStop(t *testing.T) {
	fetch := func(ctx context.Context) ([]byte, error) {
		return json.Marshal(playingComposition(1000))
	}
	p := NewPoller(fetch, 10*time.Millisecond, nil)

	got := make(chan Reading, 16)
	p.OnUpdate(func(r Reading) {
		select {
		case got <- r:
		default:
		}
	})
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop()

	select {
	case r := <-got:
		assert.Equal(t, "00:00:01:00", r.Timecode)
	case <-time.After(time.Second):
		t.Fatal("no reading")
	}
	p.Stop()
	p.Stop()
}
