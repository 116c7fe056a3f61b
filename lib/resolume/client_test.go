package resolume

import (
	"context"
	"net/http"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) (*MockServer, *Client) {
	t.Helper()
	mock, err := NewMockServer(nil)
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	client := New(Options{Host: mock.Host(), Port: mock.Port(), Timeout: 2 * time.Second})
	return mock, client
}

func TestComposition(t *testing.T) {
	_, client := setupTest(t)

	raw, err := client.Composition(context.Background())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "Weekend_Main", doc["name"])
	assert.True(t, client.State().Connected)
}

func TestCompositionHTTPError(t *testing.T) {
	mock, client := setupTest(t)
	mock.SetStatus(http.StatusServiceUnavailable)

	_, err := client.Composition(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolume error: Service Unavailable")

	st := client.State()
	assert.False(t, st.Connected)
	assert.NotEmpty(t, st.LastError)
}

func TestCompositionUnreachable(t *testing.T) {
	mock, client := setupTest(t)
	mock.Close()

	_, err := client.Composition(context.Background())
	require.Error(t, err)
	assert.True(t, IsUnreachable(err))
	assert.False(t, client.State().Connected)
}

func TestCheckConnectionDebounced(t *testing.T) {
	mock, client := setupTest(t)
	now := time.Date(2026, 10, 1, 19, 0, 0, 0, time.UTC)
	client.Tracker().SetClock(func() time.Time { return now })

	first := client.CheckConnection(context.Background())
	require.True(t, first.Connected)
	require.Equal(t, 1, mock.Requests())

	now = now.Add(time.Second)
	second := client.CheckConnection(context.Background())
	assert.Equal(t, first, second)
	assert.Equal(t, 1, mock.Requests(), "no request inside the debounce window")

	now = now.Add(3 * time.Second)
	third := client.CheckConnection(context.Background())
	assert.True(t, third.Connected)
	assert.Equal(t, 2, mock.Requests())
	assert.Equal(t, now, third.LastCheckedAt)
}

func TestPostSendsJSON(t *testing.T) {
	_, client := setupTest(t)

	// The mock only serves the composition path; a POST there still
	// returns the document, which is enough to exercise encoding.
	var out map[string]any
	err := client.Post(context.Background(), CompositionPath, map[string]int{"value": 1}, &out)
	require.NoError(t, err)
	assert.Equal(t, "Weekend_Main", out["name"])
}

func TestMockApply(t *testing.T) {
	mock, client := setupTest(t)

	require.True(t, mock.Apply("/composition/layers/1/clips/3/connect"))
	require.True(t, mock.Apply("/composition/columns/1/connect"))
	require.False(t, mock.Apply("/composition/tempocontroller/resync"))

	raw, err := client.Composition(context.Background())
	require.NoError(t, err)
	var doc struct {
		Layers []struct {
			Clips []struct {
				Connected struct {
					Value float64 `json:"value"`
				} `json:"connected"`
			} `json:"clips"`
		} `json:"layers"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 1.0, doc.Layers[0].Clips[0].Connected.Value)
	assert.Equal(t, 0.0, doc.Layers[0].Clips[2].Connected.Value)
	assert.Equal(t, 1.0, doc.Layers[1].Clips[0].Connected.Value)

	mock.DisconnectAll()
	raw, err = client.Composition(context.Background())
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, 0.0, doc.Layers[1].Clips[0].Connected.Value)
}

func TestGenerateMockCompositionDeterministic(t *testing.T) {
	a := GenerateMockComposition(4, 8, 42)
	b := GenerateMockComposition(4, 8, 42)
	assert.Equal(t, a, b)
	assert.Len(t, a["layers"], 4)
}
