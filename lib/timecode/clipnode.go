package timecode

import (
	"bytes"

	json "github.com/goccy/go-json"

	"showcall/lib/composition"
)

func clipNode(raw []byte, ref composition.ClipRef) any {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil
	}
	layers := composition.List(composition.Field(doc, "layers"))
	if ref.Layer < 1 || ref.Layer > len(layers) {
		return nil
	}
	clips := composition.List(composition.Field(layers[ref.Layer-1], "clips"))
	if ref.Column < 1 || ref.Column > len(clips) {
		return nil
	}
	return clips[ref.Column-1]
}
