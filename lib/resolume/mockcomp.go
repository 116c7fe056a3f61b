package resolume

import (
	"fmt"
	"math/rand/v2"
)

var layerNamePool = []string{
	"Background", "Video Feed", "Lower Thirds", "Lyrics", "Overlay",
	"Countdown", "Logo", "Camera", "Particles", "Transition",
}

var clipNamePool = []string{
	"Walk-In BG", "Sermon BG", "Baptism BG", "NDI Feed", "Camera 1",
	"Camera 2", "Baptism Cam", "Countdown 5m", "Announcements", "Worship Loop",
	"Logo Sting", "Bumper", "Blackout", "Haze Loop", "Title Card",
}

// MockComposition is the small two-layer show used when no mixer is
// attached. Names are bare strings, which some firmware returns instead
// of {value} wrappers.
func MockComposition() map[string]any {
	return map[string]any{
		"name": "Weekend_Main",
		"layers": []any{
			map[string]any{
				"name": "Background",
				"clips": []any{
					mockClip("Walk-In BG", 0, 0),
					mockClip("Sermon BG", 1, 1),
					mockClip("Baptism BG", 0, 0),
				},
			},
			map[string]any{
				"name": "Video Feed",
				"clips": []any{
					mockClip("NDI Feed", 0, 0),
					mockClip("Camera 1", 1, 0),
					mockClip("Baptism Cam", 0, 0),
				},
			},
		},
		"tempocontroller": map[string]any{"tempo": map[string]any{"value": 120.0}},
	}
}

func mockClip(name string, connected, opacity float64) map[string]any {
	return map[string]any{
		"name":      name,
		"connected": map[string]any{"value": connected},
		"video":     map[string]any{"opacity": map[string]any{"value": opacity}},
		"transport": map[string]any{"position": map[string]any{"value": 0.0, "max": 60000.0}},
	}
}

// GenerateMockComposition builds a deterministic composition in the
// mixer's {value}-wrapped schema. Roughly one clip slot in five is left
// empty.
func GenerateMockComposition(numLayers, numColumns int, seed uint64) map[string]any {
	rng := rand.New(rand.NewPCG(seed, 0))

	names := make([]string, len(layerNamePool))
	copy(names, layerNamePool)
	rng.Shuffle(len(names), func(i, j int) {
		names[i], names[j] = names[j], names[i]
	})

	layers := make([]any, 0, numLayers)
	for i := range numLayers {
		name := names[i%len(names)]
		if i >= len(names) {
			name = fmt.Sprintf("%s %d", name, i/len(names)+1)
		}
		clips := make([]any, 0, numColumns)
		for range numColumns {
			clipName := ""
			if rng.Float64() >= 0.2 {
				clipName = clipNamePool[rng.IntN(len(clipNamePool))]
			}
			clips = append(clips, map[string]any{
				"name":      map[string]any{"value": clipName},
				"connected": map[string]any{"value": "Disconnected"},
				"video":     map[string]any{"opacity": map[string]any{"value": 1.0}},
			})
		}
		layers = append(layers, map[string]any{
			"name":  map[string]any{"value": name},
			"clips": clips,
		})
	}

	return map[string]any{
		"name":            map[string]any{"value": fmt.Sprintf("Generated %dx%d", numLayers, numColumns)},
		"layers":          layers,
		"tempocontroller": map[string]any{"tempo": map[string]any{"value": 60 + rng.Float64()*120}},
	}
}
