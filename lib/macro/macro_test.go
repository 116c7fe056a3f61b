package macro

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/control"
)

type fakeController struct {
	calls  []string
	failAt int
}

func (f *fakeController) record(r control.Result) control.Result {
	f.calls = append(f.calls, r.Action)
	if len(f.calls) == f.failAt {
		r.Error = "send failed"
		return r
	}
	r.OK = true
	r.Method = control.MethodOSC
	return r
}

func (f *fakeController) TriggerClip(layer, column int) control.Result {
	return f.record(control.Result{Action: control.ActionTrigger, Layer: layer, Column: column})
}

func (f *fakeController) TriggerColumn(column int) control.Result {
	return f.record(control.Result{Action: control.ActionTriggerColumn, Column: column})
}

func (f *fakeController) Cut() control.Result   { return f.record(control.Result{Action: control.ActionCut}) }
func (f *fakeController) Clear() control.Result { return f.record(control.Result{Action: control.ActionClear}) }

func setupTest(t *testing.T) (*fakeController, *Executor, *[]time.Duration) {
	t.Helper()

	ctl := &fakeController{}
	ex := NewExecutor(ctl, nil)
	var slept []time.Duration
	ex.Sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return ctl, ex, &slept
}

func TestRunAllSteps(t *testing.T) {
	ctl, ex, slept := setupTest(t)

	rep := ex.Run(context.Background(), []Step{Trigger(1, 1), Sleep(50), Cut()})

	require.Len(t, rep.Results, 3)
	for i, r := range rep.Results {
		assert.Equal(t, i+1, r.Step)
		assert.True(t, r.OK)
	}
	assert.Equal(t, 50, rep.Results[1].MS)
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, *slept)
	assert.Equal(t, []string{control.ActionTrigger, control.ActionCut}, ctl.calls)
	assert.Equal(t, StateCompleted, rep.State)
	assert.Equal(t, 3, rep.Executed)
	assert.True(t, rep.OK())
}

func TestCriticalFailureStops(t *testing.T) {
	ctl, ex, _ := setupTest(t)
	ctl.failAt = 2

	rep := ex.Run(context.Background(), []Step{Trigger(1, 1), TriggerColumn(2), Clear()})

	require.Len(t, rep.Results, 2)
	assert.False(t, rep.Results[1].OK)
	assert.Equal(t, "send failed", rep.Results[1].Error)
	assert.True(t, rep.Aborted)
	assert.Equal(t, StateAborted, rep.State)
	assert.Equal(t, 3, rep.TotalSteps)
	assert.Equal(t, 2, rep.Executed)
	assert.Len(t, ctl.calls, 2)
}

func TestNonCriticalFailureContinues(t *testing.T) {
	ctl, ex, _ := setupTest(t)
	ctl.failAt = 1

	rep := ex.Run(context.Background(), []Step{Cut().NonCritical(), Clear()})

	require.Len(t, rep.Results, 2)
	assert.False(t, rep.Results[0].OK)
	assert.True(t, rep.Results[1].OK)
	assert.Equal(t, StateCompleted, rep.State)
	assert.False(t, rep.OK())
}

func TestUnknownStepType(t *testing.T) {
	_, ex, _ := setupTest(t)

	rep := ex.Run(context.Background(), []Step{{Type: "explode"}, Cut()})

	require.Len(t, rep.Results, 1)
	assert.False(t, rep.Results[0].OK)
	assert.Contains(t, rep.Results[0].Error, "explode")
	assert.True(t, rep.Aborted)
}

func TestSleepDefault(t *testing.T) {
	_, ex, slept := setupTest(t)

	rep := ex.Run(context.Background(), []Step{{Type: "SLEEP"}})

	require.True(t, rep.Results[0].OK)
	assert.Equal(t, 100, rep.Results[0].MS)
	assert.Equal(t, []time.Duration{DefaultSleep}, *slept)
}

func TestCancelledContext(t *testing.T) {
	ctl, ex, _ := setupTest(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := ex.Run(ctx, []Step{Trigger(1, 1)})

	assert.True(t, rep.Aborted)
	assert.Empty(t, ctl.calls)
}

func TestRealSleep(t *testing.T) {
	ex := NewExecutor(&fakeController{}, nil)

	start := time.Now()
	rep := ex.Run(context.Background(), []Step{Sleep(20)})
	assert.True(t, rep.OK())
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestStepJSON(t *testing.T) {
	var steps []Step
	err := json.Unmarshal([]byte(`[
		{"type":"trigger","layer":2,"column":3},
		{"type":"TriggerColumn","column":1,"critical":false},
		{"type":"sleep","ms":250}
	]`), &steps)
	require.NoError(t, err)

	assert.Equal(t, TypeTrigger, steps[0].Kind())
	assert.True(t, steps[0].IsCritical())
	assert.Equal(t, TypeTriggerColumn, steps[1].Kind())
	assert.False(t, steps[1].IsCritical())
	assert.Equal(t, 250*time.Millisecond, steps[2].Duration())
	require.NoError(t, Validate(steps))
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrEmptyMacro)
	assert.Error(t, Validate([]Step{Trigger(0, 1)}))
	assert.Error(t, Validate([]Step{TriggerColumn(-1)}))
	assert.Error(t, Validate([]Step{Sleep(-5)}))
	assert.Error(t, Validate([]Step{{Type: "nope"}}))
	assert.NoError(t, Validate([]Step{Cut(), Clear(), Sleep(0)}))
	assert.False(t, errors.Is(Validate([]Step{Cut()}), ErrEmptyMacro))
}
