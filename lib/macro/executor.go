package macro

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"showcall/lib/control"
)

type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateAborted   State = "aborted"
)

// Controller is the subset of the dispatcher a macro drives.
type Controller interface {
	TriggerClip(layer, column int) control.Result
	TriggerColumn(column int) control.Result
	Cut() control.Result
	Clear() control.Result
}

type StepResult struct {
	Step   int    `json:"step"`
	OK     bool   `json:"ok"`
	Action string `json:"action,omitempty"`
	Layer  int    `json:"layer,omitempty"`
	Column int    `json:"column,omitempty"`
	MS     int    `json:"ms,omitempty"`
	Method string `json:"method,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Report lists every step that ran. Steps skipped after an abort are
// counted by TotalSteps minus Executed.
type Report struct {
	Results    []StepResult `json:"results"`
	TotalSteps int          `json:"totalSteps"`
	Executed   int          `json:"executed"`
	Aborted    bool         `json:"aborted"`
	State      State        `json:"state"`
}

func (r Report) OK() bool {
	if r.Aborted {
		return false
	}
	for _, res := range r.Results {
		if !res.OK {
			return false
		}
	}
	return true
}

type Executor struct {
	ctl Controller
	log *slog.Logger

	// Sleep waits d or until ctx ends. Replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func NewExecutor(ctl Controller, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{ctl: ctl, log: log, Sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run executes steps in order, each one finishing before the next
// starts. A failed critical step stops the run. Separate calls may run
// concurrently.
func (e *Executor) Run(ctx context.Context, steps []Step) Report {
	rep := Report{
		Results:    make([]StepResult, 0, len(steps)),
		TotalSteps: len(steps),
		State:      StateRunning,
	}
	for i, s := range steps {
		res := e.runStep(ctx, s)
		res.Step = i + 1
		rep.Results = append(rep.Results, res)
		rep.Executed++

		if !res.OK && s.IsCritical() {
			e.log.Warn("macro step failed, stopping",
				"step", res.Step, "action", res.Action, "error", res.Error,
				"skipped", len(steps)-rep.Executed)
			rep.Aborted = true
			rep.State = StateAborted
			return rep
		}
	}
	rep.State = StateCompleted
	return rep
}

func (e *Executor) runStep(ctx context.Context, s Step) StepResult {
	if err := ctx.Err(); err != nil {
		return StepResult{Action: s.Type, Error: err.Error()}
	}
	if err := validateStep(s); err != nil {
		return StepResult{Action: s.Type, Layer: s.Layer, Column: s.Column, Error: err.Error()}
	}

	switch s.Kind() {
	case TypeTrigger:
		return fromControl(e.ctl.TriggerClip(s.Layer, s.Column))
	case TypeTriggerColumn:
		return fromControl(e.ctl.TriggerColumn(s.Column))
	case TypeCut:
		return fromControl(e.ctl.Cut())
	case TypeClear:
		return fromControl(e.ctl.Clear())
	case TypeSleep:
		d := s.Duration()
		res := StepResult{Action: TypeSleep, MS: int(d / time.Millisecond)}
		if err := e.Sleep(ctx, d); err != nil {
			res.Error = err.Error()
			return res
		}
		res.OK = true
		return res
	}
	return StepResult{Action: s.Type, Error: fmt.Sprintf("unknown step type: %s", s.Type)}
}

func fromControl(r control.Result) StepResult {
	return StepResult{
		OK:     r.OK,
		Action: r.Action,
		Layer:  r.Layer,
		Column: r.Column,
		Method: r.Method,
		Error:  r.Error,
	}
}
