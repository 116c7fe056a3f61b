// Package macro runs ordered step lists against the mixer.
package macro

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const DefaultSleep = 100 * time.Millisecond

const (
	TypeTrigger       = "trigger"
	TypeTriggerColumn = "triggerColumn"
	TypeCut           = "cut"
	TypeClear         = "clear"
	TypeSleep         = "sleep"
)

var (
	ErrEmptyMacro  = errors.New("macro has no steps")
	ErrInvalidStep = errors.New("invalid macro step")
)

// Step is one action of a macro. Type selects which of the other fields
// apply. Type names are matched case-insensitively.
type Step struct {
	Type     string `json:"type"`
	Layer    int    `json:"layer,omitempty"`
	Column   int    `json:"column,omitempty"`
	MS       *int   `json:"ms,omitempty"`
	Critical *bool  `json:"critical,omitempty"`
}

func Trigger(layer, column int) Step { return Step{Type: TypeTrigger, Layer: layer, Column: column} }
func TriggerColumn(column int) Step  { return Step{Type: TypeTriggerColumn, Column: column} }
func Cut() Step                      { return Step{Type: TypeCut} }
func Clear() Step                    { return Step{Type: TypeClear} }

func Sleep(ms int) Step { return Step{Type: TypeSleep, MS: &ms} }

// NonCritical marks the step so its failure does not abort the run.
func (s Step) NonCritical() Step {
	f := false
	s.Critical = &f
	return s
}

// IsCritical is true unless the step is explicitly marked critical:false.
func (s Step) IsCritical() bool {
	return s.Critical == nil || *s.Critical
}

// Kind returns the canonical type name, or "" when unknown.
func (s Step) Kind() string {
	switch strings.ToLower(strings.TrimSpace(s.Type)) {
	case "trigger":
		return TypeTrigger
	case "triggercolumn":
		return TypeTriggerColumn
	case "cut":
		return TypeCut
	case "clear":
		return TypeClear
	case "sleep":
		return TypeSleep
	}
	return ""
}

func (s Step) Duration() time.Duration {
	if s.MS == nil || *s.MS == 0 {
		return DefaultSleep
	}
	return time.Duration(*s.MS) * time.Millisecond
}

func (s Step) String() string {
	switch s.Kind() {
	case TypeTrigger:
		return fmt.Sprintf("trigger L%dC%d", s.Layer, s.Column)
	case TypeTriggerColumn:
		return fmt.Sprintf("column %d", s.Column)
	case TypeSleep:
		return fmt.Sprintf("sleep %s", s.Duration())
	case "":
		return fmt.Sprintf("unknown(%s)", s.Type)
	}
	return s.Kind()
}

// Validate checks the shape of each step. Executors still guard against
// invalid steps at run time.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return ErrEmptyMacro
	}
	for i, s := range steps {
		if err := validateStep(s); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

func validateStep(s Step) error {
	switch s.Kind() {
	case TypeTrigger:
		if s.Layer < 1 || s.Column < 1 {
			return fmt.Errorf("%w: trigger needs positive layer and column", ErrInvalidStep)
		}
	case TypeTriggerColumn:
		if s.Column < 1 {
			return fmt.Errorf("%w: triggerColumn needs a positive column", ErrInvalidStep)
		}
	case TypeSleep:
		if s.MS != nil && *s.MS < 0 {
			return fmt.Errorf("%w: sleep ms must not be negative", ErrInvalidStep)
		}
	case TypeCut, TypeClear:
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidStep, s.Type)
	}
	return nil
}
