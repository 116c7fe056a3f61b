package composition

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/resolume"
)

func TestNormalizeMockComposition(t *testing.T) {
	snap := NormalizeDocument(resolume.MockComposition())

	assert.True(t, snap.Connected)
	assert.Equal(t, "Weekend_Main", snap.CompositionName)
	assert.Equal(t, KnownBPM(120), snap.BPM)
	require.Len(t, snap.Layers, 2)
	assert.Equal(t, "Background", snap.Layers[0].Name)
	assert.Equal(t, 3, snap.MaxColumns())

	assert.Equal(t, ClipRef{Layer: 1, Column: 2, ClipName: "Sermon BG", LayerName: "Background"}, snap.Program)
	assert.Equal(t, ClipRef{Layer: 2, Column: 2, ClipName: "Camera 1", LayerName: "Video Feed"}, snap.Preview)
}

func TestNormalizeWrappedAndBareFields(t *testing.T) {
	raw := []byte(`{
		"name": {"value": "Show"},
		"layers": [{
			"name": {"value": "Main"},
			"clips": [
				{"name": {"value": "A"}, "connected": {"value": "Connected"}, "video": {"opacity": {"value": 0.5}}},
				{"name": "", "connected": 0},
				{"name": {"value": "—"}},
				null
			]
		}],
		"tempocontroller": {"tempo": {"value": 127.6}}
	}`)
	snap := Normalize(raw)

	assert.True(t, snap.Connected)
	assert.Equal(t, "Show", snap.CompositionName)
	assert.Equal(t, KnownBPM(128), snap.BPM)
	require.Len(t, snap.Layers[0].Clips, 4)

	clips := snap.Layers[0].Clips
	assert.False(t, clips[0].IsEmpty)
	assert.True(t, clips[0].IsConnected)
	assert.True(t, clips[1].IsEmpty)
	assert.True(t, clips[2].IsEmpty)
	assert.True(t, clips[3].IsEmpty)
	assert.Equal(t, 4, clips[3].Column)

	assert.Equal(t, 1, snap.Program.Column)
	assert.True(t, snap.Preview.IsZero())
}

func TestNormalizeNoActiveClips(t *testing.T) {
	snap := Normalize([]byte(`{"name":"Quiet","layers":[{"clips":[{"name":"A","connected":0}]}]}`))

	assert.True(t, snap.Program.IsZero())
	assert.True(t, snap.Preview.IsZero())
	assert.Equal(t, BPM{}, snap.BPM)
	assert.Equal(t, "Layer 1", snap.Layers[0].Name)

	out, err := json.Marshal(snap)
	require.NoError(t, err)
	var wire map[string]any
	require.NoError(t, json.Unmarshal(out, &wire))
	assert.Equal(t, "—", wire["bpm"])
	assert.Equal(t, "Quiet", wire["comp"])
	program := wire["program"].(map[string]any)
	assert.Equal(t, "—", program["clipName"])
	assert.Equal(t, "—", program["layer"])
}

func TestNormalizeLastActiveWins(t *testing.T) {
	snap := Normalize([]byte(`{"layers":[
		{"clips":[{"name":"A","connected":1,"video":{"opacity":1}}]},
		{"clips":[{"name":"B","connected":1,"video":{"opacity":1}}]}
	]}`))

	assert.Equal(t, "B", snap.Program.ClipName)
	assert.Equal(t, 2, snap.Program.Layer)
}

func TestNormalizeUnnamedActiveClip(t *testing.T) {
	snap := Normalize([]byte(`{"layers":[{"clips":[{},{"connected":true}]}]}`))

	assert.Equal(t, "Clip 2", snap.Preview.ClipName)
	assert.Equal(t, "Layer 1", snap.Preview.LayerName)
	assert.True(t, snap.Layers[0].Clips[1].IsEmpty)
}

func TestNormalizeParseFailure(t *testing.T) {
	snap := Normalize([]byte(`{"layers": [`))

	assert.False(t, snap.Connected)
	assert.Equal(t, Placeholder, snap.CompositionName)
	assert.True(t, snap.Program.IsZero())
	assert.NotEmpty(t, snap.Error)
}

func TestNormalizeMistypedDocument(t *testing.T) {
	for _, raw := range []string{`[]`, `"x"`, `null`, `{"layers": {"0": 1}}`, `{"layers": [1, "x", null]}`} {
		snap := Normalize([]byte(raw))
		assert.NotPanics(t, func() { _, _ = json.Marshal(snap) }, raw)
	}
	snap := Normalize([]byte(`{"layers": [1, "x", null]}`))
	assert.True(t, snap.Connected)
	assert.Len(t, snap.Layers, 3)
}

func TestDegraded(t *testing.T) {
	snap := Degraded(errors.New("resolume error: timeout"))

	assert.False(t, snap.Connected)
	assert.Equal(t, "resolume error: timeout", snap.Error)
}

func TestStructure(t *testing.T) {
	doc := resolume.GenerateMockComposition(3, 5, 7)
	st := NormalizeDocument(doc).Structure()

	assert.True(t, st.Connected)
	assert.Len(t, st.Layers, 3)
	assert.Equal(t, 5, st.MaxColumns)
	for _, l := range st.Layers {
		for _, c := range l.Clips {
			assert.Equal(t, c.Name == "", c.IsEmpty)
		}
	}
}

func TestActive(t *testing.T) {
	cases := map[string]struct {
		node any
		want bool
	}{
		"one":        {1.0, true},
		"zero":       {0.0, false},
		"wrapped":    {map[string]any{"value": 2.0}, true},
		"bool":       {true, true},
		"previewing": {"Previewing", true},
		"disconn":    {"Disconnected", false},
		"numeric":    {"3", true},
		"missing":    {nil, false},
	}
	for name, tc := range cases {
		assert.Equal(t, tc.want, Active(tc.node), name)
	}
}
