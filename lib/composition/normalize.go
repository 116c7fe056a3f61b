package composition

import (
	"bytes"
	"fmt"
	"math"
	"time"

	json "github.com/goccy/go-json"
)

// Normalize parses a raw composition document. Parse failures yield the
// all-unknown snapshot with connected false.
func Normalize(raw []byte) Snapshot {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Degraded(fmt.Errorf("composition: parse: %w", err))
	}
	return NormalizeDocument(doc)
}

// NormalizeDocument builds a snapshot from an already decoded document.
// Missing or mistyped nodes degrade to placeholders; it never panics.
func NormalizeDocument(doc any) (snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			snap = Degraded(fmt.Errorf("composition: normalize: %v", r))
		}
	}()

	if _, ok := doc.(map[string]any); !ok {
		return Degraded(fmt.Errorf("composition: document is not an object"))
	}

	snap = Snapshot{
		Connected:       true,
		CompositionName: UnknownName,
		Timestamp:       time.Now(),
	}
	if name, ok := String(Field(doc, "name")); ok && name != "" {
		snap.CompositionName = name
	}
	snap.BPM = tempo(doc)

	for li, layerNode := range List(Field(doc, "layers")) {
		layerID := li + 1
		layer := Layer{ID: layerID, Name: fmt.Sprintf("Layer %d", layerID)}
		if name, ok := String(Field(layerNode, "name")); ok && name != "" {
			layer.Name = name
		}

		for ci, clipNode := range List(Field(layerNode, "clips")) {
			clip := Clip{Layer: layerID, Column: ci + 1}
			if _, isObj := clipNode.(map[string]any); isObj {
				clip.Name, _ = ClipName(Field(clipNode, "name"))
				clip.IsConnected = Active(Field(clipNode, "connected"))
			}
			clip.IsEmpty = clip.Name == ""
			layer.Clips = append(layer.Clips, clip)

			if !clip.IsConnected {
				continue
			}
			ref := ClipRef{
				Layer:     layerID,
				Column:    clip.Column,
				ClipName:  clip.Name,
				LayerName: layer.Name,
			}
			if ref.ClipName == "" {
				ref.ClipName = fmt.Sprintf("Clip %d", clip.Column)
			}
			if opacity, ok := Number(Field(clipNode, "video", "opacity")); ok && opacity > 0 {
				snap.Program = ref
			} else {
				snap.Preview = ref
			}
		}
		if layer.Clips == nil {
			layer.Clips = []Clip{}
		}
		snap.Layers = append(snap.Layers, layer)
	}
	return snap
}

func tempo(doc any) BPM {
	if v, ok := Number(Field(doc, "tempocontroller", "tempo")); ok {
		return KnownBPM(int(math.Round(v)))
	}
	if v, ok := Number(Field(doc, "transport", "bpm")); ok {
		return KnownBPM(int(math.Round(v)))
	}
	return BPM{}
}
