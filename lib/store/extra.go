package store

import (
	json "github.com/goccy/go-json"
)

// Fields the UI writes that the server does not model are carried
// through saves untouched.

var (
	presetsKeys = []string{"presets", "quickCues", "cells"}
	presetKeys  = []string{"id", "label", "hotkey", "color", "macro"}
)

func (d *Presets) UnmarshalJSON(data []byte) error {
	type plain Presets
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := unknownFields(data, presetsKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*d = Presets(v)
	return nil
}

func (d Presets) MarshalJSON() ([]byte, error) {
	type plain Presets
	data, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return withFields(data, d.Extra)
}

func (p *Preset) UnmarshalJSON(data []byte) error {
	type plain Preset
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	extra, err := unknownFields(data, presetKeys)
	if err != nil {
		return err
	}
	v.Extra = extra
	*p = Preset(v)
	return nil
}

func (p Preset) MarshalJSON() ([]byte, error) {
	type plain Preset
	data, err := json.Marshal(plain(p))
	if err != nil {
		return nil, err
	}
	return withFields(data, p.Extra)
}

func unknownFields(data []byte, known []string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// withFields adds extra to the encoded object. Modeled fields win.
func withFields(data []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return data, nil
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := all[k]; !ok {
			all[k] = v
		}
	}
	return json.Marshal(all)
}
