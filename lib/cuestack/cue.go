// Package cuestack steps through an ordered show list of cues.
package cuestack

import (
	"fmt"

	"showcall/lib/macro"
)

const StandbyLabel = "Standby"

// Stack is the persisted cue list. CurrentIndex -1 means nothing has
// run yet.
type Stack struct {
	Name         string `json:"name"`
	Cues         []Cue  `json:"cues"`
	CurrentIndex int    `json:"currentIndex"`
}

// Cue references a preset by id or carries its own actions in Custom.
// A cue with neither does nothing when run.
type Cue struct {
	PresetID string     `json:"presetId,omitempty"`
	Custom   *CustomCue `json:"custom,omitempty"`
	Notes    string     `json:"notes,omitempty"`
}

type CustomCue struct {
	Label   string       `json:"label"`
	Color   string       `json:"color,omitempty"`
	Actions []macro.Step `json:"actions"`
}

func Standby() Cue {
	return Cue{Custom: &CustomCue{Label: StandbyLabel, Actions: []macro.Step{}}}
}

func DefaultStack() Stack {
	return Stack{Name: "Show", Cues: []Cue{Standby()}, CurrentIndex: -1}
}

// Validate checks the pointer range and custom actions. Preset
// references are resolved at run time and may dangle.
func (s Stack) Validate() error {
	if s.CurrentIndex < -1 || s.CurrentIndex >= len(s.Cues) {
		return fmt.Errorf("%w: currentIndex %d with %d cues", ErrIndexOutOfRange, s.CurrentIndex, len(s.Cues))
	}
	for i, c := range s.Cues {
		if c.Custom != nil && c.PresetID != "" {
			return fmt.Errorf("%w: cue %d sets both presetId and custom", ErrInvalidCue, i)
		}
		if c.Custom != nil && len(c.Custom.Actions) > 0 {
			if err := macro.Validate(c.Custom.Actions); err != nil {
				return fmt.Errorf("cue %d: %w", i, err)
			}
		}
	}
	return nil
}
