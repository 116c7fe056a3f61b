// Package composition turns the mixer's loosely typed composition
// document into a stable model.
package composition

import (
	"time"

	json "github.com/goccy/go-json"
)

// Placeholder is rendered wherever a value is unknown.
const Placeholder = "—"

const UnknownName = "Unknown"

type Clip struct {
	Layer       int    `json:"layer"`
	Column      int    `json:"column"`
	Name        string `json:"name"`
	IsConnected bool   `json:"isConnected"`
	IsEmpty     bool   `json:"isEmpty"`
}

type Layer struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Clips []Clip `json:"clips"`
}

// ClipRef points at the program or preview clip. The zero value means
// none and is rendered as placeholders.
type ClipRef struct {
	Layer     int
	Column    int
	ClipName  string
	LayerName string
}

func (r ClipRef) IsZero() bool {
	return r.Layer == 0 && r.Column == 0
}

func (r ClipRef) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return json.Marshal(map[string]string{
			"layer":     Placeholder,
			"column":    Placeholder,
			"clipName":  Placeholder,
			"layerName": Placeholder,
		})
	}
	return json.Marshal(struct {
		Layer     int    `json:"layer"`
		Column    int    `json:"column"`
		ClipName  string `json:"clipName"`
		LayerName string `json:"layerName"`
	}{r.Layer, r.Column, r.ClipName, r.LayerName})
}

// BPM is a rounded tempo or unknown.
type BPM struct {
	Value int
	Known bool
}

func KnownBPM(v int) BPM { return BPM{Value: v, Known: true} }

func (b BPM) MarshalJSON() ([]byte, error) {
	if !b.Known {
		return json.Marshal(Placeholder)
	}
	return json.Marshal(b.Value)
}

func (b *BPM) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*b = KnownBPM(n)
		return nil
	}
	*b = BPM{}
	return nil
}

// Snapshot is the normalized state from one status cycle. It is built
// fresh every cycle and never modified afterwards.
type Snapshot struct {
	Connected       bool      `json:"connected"`
	CompositionName string    `json:"compositionName"`
	Layers          []Layer   `json:"layers"`
	Program         ClipRef   `json:"program"`
	Preview         ClipRef   `json:"preview"`
	BPM             BPM       `json:"bpm"`
	Timestamp       time.Time `json:"-"`
	Error           string    `json:"error,omitempty"`
}

// MarshalJSON adds the fields the status stream has always carried: the
// composition name under "comp" and a millisecond timestamp.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	type plain Snapshot
	layers := s.Layers
	if layers == nil {
		layers = []Layer{}
	}
	p := plain(s)
	p.Layers = layers
	return json.Marshal(struct {
		plain
		Comp      string `json:"comp"`
		Timestamp int64  `json:"timestamp"`
	}{p, s.CompositionName, s.Timestamp.UnixMilli()})
}

// MaxColumns is the widest layer's clip count.
func (s Snapshot) MaxColumns() int {
	n := 0
	for _, l := range s.Layers {
		n = max(n, len(l.Clips))
	}
	return n
}

// Clip returns the clip at the 1-based position.
func (s Snapshot) Clip(layer, column int) (Clip, bool) {
	if layer < 1 || layer > len(s.Layers) {
		return Clip{}, false
	}
	clips := s.Layers[layer-1].Clips
	if column < 1 || column > len(clips) {
		return Clip{}, false
	}
	return clips[column-1], true
}

// Unknown is the safe all-unknown snapshot.
func Unknown() Snapshot {
	return Snapshot{
		Connected:       false,
		CompositionName: Placeholder,
		Timestamp:       time.Now(),
	}
}

// Degraded is Unknown carrying the error that caused it.
func Degraded(err error) Snapshot {
	s := Unknown()
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Structure is the grid view served by GET /api/composition.
type Structure struct {
	Connected       bool    `json:"connected"`
	CompositionName string  `json:"compositionName"`
	Layers          []Layer `json:"layers"`
	MaxColumns      int     `json:"maxColumns"`
	Timestamp       int64   `json:"timestamp"`
}

func (s Snapshot) Structure() Structure {
	layers := s.Layers
	if layers == nil {
		layers = []Layer{}
	}
	return Structure{
		Connected:       s.Connected,
		CompositionName: s.CompositionName,
		Layers:          layers,
		MaxColumns:      s.MaxColumns(),
		Timestamp:       s.Timestamp.UnixMilli(),
	}
}
