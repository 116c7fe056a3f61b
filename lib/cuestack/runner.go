package cuestack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"showcall/lib/macro"
)

var (
	ErrComplete        = errors.New("cue stack complete")
	ErrIndexOutOfRange = errors.New("cue index out of range")
	ErrDanglingPreset  = errors.New("cue references a missing preset")
	ErrInvalidCue      = errors.New("invalid cue")
)

// Persister owns the stored cue stack. SetCurrentIndex must write
// through before returning.
type Persister interface {
	CueStack() Stack
	SetCurrentIndex(i int) error
}

// Presets resolves preset references at run time.
type Presets interface {
	PresetMacro(id string) (label string, steps []macro.Step, ok bool)
}

type Executor interface {
	Run(ctx context.Context, steps []macro.Step) macro.Report
}

type CueInfo struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Color string `json:"color,omitempty"`
}

// State is the pointer position for display.
type State struct {
	Name         string   `json:"name"`
	CurrentIndex int      `json:"currentIndex"`
	Total        int      `json:"total"`
	Current      *CueInfo `json:"current,omitempty"`
	Next         *CueInfo `json:"next,omitempty"`
	Complete     bool     `json:"complete"`
}

// Outcome describes one GO or cue run.
type Outcome struct {
	Index    int           `json:"index"`
	Label    string        `json:"label,omitempty"`
	Complete bool          `json:"complete,omitempty"`
	Report   *macro.Report `json:"report,omitempty"`
	Error    string        `json:"error,omitempty"`
}

type Runner struct {
	store   Persister
	presets Presets
	exec    Executor
	log     *slog.Logger

	// mu serializes pointer moves. Steps run outside it.
	mu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func(State)
	nextID int
}

func NewRunner(store Persister, presets Presets, exec Executor, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{
		store:   store,
		presets: presets,
		exec:    exec,
		log:     log.With(slog.String("component", "cuestack")),
		subs:    map[int]func(State){},
	}
}

func (r *Runner) State() State {
	return stateOf(r.store.CueStack(), r.presets)
}

// Next advances the pointer and runs the cue it lands on. The new
// index is persisted before the steps run, so a failed cue still counts
// as attempted and a second GO moves on.
func (r *Runner) Next(ctx context.Context) (Outcome, error) {
	r.mu.Lock()
	st := r.store.CueStack()
	next := st.CurrentIndex + 1
	if next >= len(st.Cues) {
		r.mu.Unlock()
		return Outcome{Index: st.CurrentIndex, Complete: true}, ErrComplete
	}
	if err := r.store.SetCurrentIndex(next); err != nil {
		r.mu.Unlock()
		return Outcome{Index: st.CurrentIndex}, fmt.Errorf("cuestack: persist index: %w", err)
	}
	r.mu.Unlock()

	r.log.Info("go", slog.Int("cue", next))
	r.notify()
	return r.run(ctx, st.Cues[next], next)
}

// Jump moves the pointer without running anything. -1 returns to
// before the first cue.
func (r *Runner) Jump(index int) (State, error) {
	r.mu.Lock()
	st := r.store.CueStack()
	if index < -1 || index >= len(st.Cues) {
		r.mu.Unlock()
		return stateOf(st, r.presets), fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(st.Cues))
	}
	if err := r.store.SetCurrentIndex(index); err != nil {
		r.mu.Unlock()
		return stateOf(st, r.presets), fmt.Errorf("cuestack: persist index: %w", err)
	}
	r.mu.Unlock()

	r.log.Info("jump", slog.Int("cue", index))
	r.notify()
	return r.State(), nil
}

// Step moves the pointer by delta, clamped to the stack.
func (r *Runner) Step(delta int) (State, error) {
	st := r.store.CueStack()
	i := min(max(st.CurrentIndex+delta, -1), len(st.Cues)-1)
	return r.Jump(i)
}

// RunCue runs one cue without moving the pointer.
func (r *Runner) RunCue(ctx context.Context, index int) (Outcome, error) {
	st := r.store.CueStack()
	if index < 0 || index >= len(st.Cues) {
		return Outcome{Index: index}, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(st.Cues))
	}
	return r.run(ctx, st.Cues[index], index)
}

func (r *Runner) run(ctx context.Context, cue Cue, index int) (Outcome, error) {
	label, steps, err := resolve(cue, index, r.presets)
	out := Outcome{Index: index, Label: label}
	if err != nil {
		r.log.Warn("cue not runnable", slog.Int("cue", index), slog.String("error", err.Error()))
		out.Error = err.Error()
		return out, err
	}
	rep := r.exec.Run(ctx, steps)
	out.Report = &rep
	if rep.Aborted {
		out.Error = fmt.Sprintf("cue aborted after %d of %d steps", rep.Executed, rep.TotalSteps)
	}
	return out, nil
}

// Subscribe registers fn for pointer changes. The returned func
// unregisters it.
func (r *Runner) Subscribe(fn func(State)) func() {
	r.subMu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = fn
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, id)
		r.subMu.Unlock()
	}
}

// Refresh pushes the current state to subscribers, for example after
// the stored stack was replaced.
func (r *Runner) Refresh() {
	r.notify()
}

func (r *Runner) notify() {
	st := r.State()
	r.subMu.Lock()
	fns := make([]func(State), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.subMu.Unlock()
	for _, fn := range fns {
		fn(st)
	}
}

func resolve(cue Cue, index int, presets Presets) (string, []macro.Step, error) {
	switch {
	case cue.Custom != nil:
		label := cue.Custom.Label
		if label == "" {
			label = fmt.Sprintf("Cue %d", index)
		}
		return label, cue.Custom.Actions, nil
	case cue.PresetID != "":
		if presets == nil {
			return cue.PresetID, nil, fmt.Errorf("%w: %s", ErrDanglingPreset, cue.PresetID)
		}
		label, steps, ok := presets.PresetMacro(cue.PresetID)
		if !ok {
			return cue.PresetID, nil, fmt.Errorf("%w: %s", ErrDanglingPreset, cue.PresetID)
		}
		return label, steps, nil
	}
	return fmt.Sprintf("Cue %d", index), nil, nil
}

func info(st Stack, i int, presets Presets) *CueInfo {
	if i < 0 || i >= len(st.Cues) {
		return nil
	}
	c := st.Cues[i]
	label, _, _ := resolve(c, i, presets)
	ci := &CueInfo{Index: i, Label: label}
	if c.Custom != nil {
		ci.Color = c.Custom.Color
	}
	return ci
}

func stateOf(st Stack, presets Presets) State {
	return State{
		Name:         st.Name,
		CurrentIndex: st.CurrentIndex,
		Total:        len(st.Cues),
		Current:      info(st, st.CurrentIndex, presets),
		Next:         info(st, st.CurrentIndex+1, presets),
		Complete:     st.CurrentIndex >= len(st.Cues)-1,
	}
}
