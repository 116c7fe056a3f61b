package xtouch

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"showcall/lib/control"
	"showcall/lib/cuestack"
	"showcall/lib/logging"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		msg  midi.Message
		want Event
	}{
		{midi.NoteOn(0, ButtonPlay, 127), ButtonEvent{Button: ButtonPlay, Pressed: true}},
		{midi.NoteOff(0, ButtonPlay), ButtonEvent{Button: ButtonPlay, Pressed: false}},
		{midi.ControlChange(0, CCJogWheel, 65), JogWheelEvent{Clockwise: true}},
		{midi.ControlChange(0, CCJogWheel, 1), JogWheelEvent{Clockwise: false}},
		{midi.ControlChange(0, CCFootSwitch1, 127), FootSwitchEvent{Switch: 1, Pressed: true}},
		{midi.ControlChange(0, CCFootSwitch2, 0), FootSwitchEvent{Switch: 2, Pressed: false}},
		{midi.ControlChange(0, CCEncoderFirst+1, 1), EncoderEvent{Encoder: 1, Delta: -1}},
		{midi.ControlChange(0, CCEncoderFirst, 65), EncoderEvent{Encoder: 0, Delta: 1}},
		{midi.ControlChange(0, 10, 5), nil},
		{midi.NoteOn(0, 110, 127), nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Decode(tt.msg), tt.msg.String())
	}
}

func TestFit(t *testing.T) {
	assert.Equal(t, []byte("GO     "), fit("GO"))
	assert.Equal(t, []byte("Walk-In"), fit("Walk-In Loop"))
	assert.Equal(t, []byte("caf??  "), fit("café"))
}

type fakeCues struct {
	state cuestack.State
	gos   int
	steps []int
	err   error
}

func (f *fakeCues) State() cuestack.State { return f.state }

func (f *fakeCues) Next(ctx context.Context) (cuestack.Outcome, error) {
	f.gos++
	return cuestack.Outcome{Index: f.gos - 1}, f.err
}

func (f *fakeCues) Step(delta int) (cuestack.State, error) {
	f.steps = append(f.steps, delta)
	return f.state, nil
}

type fakeClear struct{ n int }

func (f *fakeClear) Clear() control.Result {
	f.n++
	return control.Result{OK: true, Action: control.ActionClear}
}

func setupTest(t *testing.T) (*Surface, *fakeCues, *fakeClear, *[]midi.Message) {
	t.Helper()
	var sent []midi.Message
	cues := &fakeCues{}
	clr := &fakeClear{}
	s := NewSurface(Options{
		Cues:    cues,
		Control: clr,
		Output: &Output{
			DeviceID: DeviceIDXTouch,
			Send: func(msg midi.Message) error {
				sent = append(sent, msg)
				return nil
			},
		},
		Lockout: 500 * time.Millisecond,
		Logger:  logging.Discard(),
	})
	return s, cues, clr, &sent
}

func TestTransport(t *testing.T) {
	s, cues, clr, _ := setupTest(t)
	ctx := context.Background()
	now := time.Now()

	s.Handle(ctx, ButtonEvent{Button: ButtonPlay, Pressed: true}, now)
	s.Handle(ctx, ButtonEvent{Button: ButtonPlay, Pressed: false}, now)
	assert.Equal(t, 1, cues.gos)

	s.Handle(ctx, ButtonEvent{Button: ButtonRewind, Pressed: true}, now)
	s.Handle(ctx, ButtonEvent{Button: ButtonFastForward, Pressed: true}, now)
	s.Handle(ctx, JogWheelEvent{Clockwise: true}, now)
	s.Handle(ctx, JogWheelEvent{Clockwise: false}, now)
	s.Handle(ctx, EncoderEvent{Encoder: 0, Delta: 1}, now)
	s.Handle(ctx, EncoderEvent{Encoder: 3, Delta: 1}, now)
	assert.Equal(t, []int{-1, 1, 1, -1, 1}, cues.steps)

	s.Handle(ctx, ButtonEvent{Button: ButtonStop, Pressed: true}, now)
	assert.Equal(t, 1, clr.n)
}

func TestGoLockout(t *testing.T) {
	s, cues, _, _ := setupTest(t)
	ctx := context.Background()
	now := time.Now()

	s.Handle(ctx, ButtonEvent{Button: ButtonPlay, Pressed: true}, now)
	s.Handle(ctx, FootSwitchEvent{Switch: 1, Pressed: true}, now.Add(50*time.Millisecond))
	s.Handle(ctx, ButtonEvent{Button: ButtonPlay, Pressed: true}, now.Add(300*time.Millisecond))
	assert.Equal(t, 1, cues.gos)

	s.Handle(ctx, FootSwitchEvent{Switch: 1, Pressed: true}, now.Add(600*time.Millisecond))
	assert.Equal(t, 2, cues.gos)

	s.Handle(ctx, FootSwitchEvent{Switch: 2, Pressed: true}, now.Add(5*time.Second))
	assert.Equal(t, 2, cues.gos)
}

func TestGoFailureIsLogged(t *testing.T) {
	s, cues, _, _ := setupTest(t)
	cues.err = errors.New("boom")

	s.Handle(context.Background(), ButtonEvent{Button: ButtonPlay, Pressed: true}, time.Now())
	assert.Equal(t, 1, cues.gos)
}

func TestShow(t *testing.T) {
	s, _, _, sent := setupTest(t)

	require.NoError(t, s.Show(cuestack.State{
		CurrentIndex: 0,
		Total:        2,
		Current:      &cuestack.CueInfo{Index: 0, Label: "Walk-In"},
		Next:         &cuestack.CueInfo{Index: 1, Label: "Sermon"},
	}))
	require.Len(t, *sent, 3)

	header := []byte{0x00, 0x20, 0x32, DeviceIDXTouch, 0x4c, 0}
	strip0 := append(append(header, byte(ColorGreen)), []byte("CUE 1  Walk-In")...)
	assert.True(t, bytes.Contains((*sent)[0], strip0), "% x", (*sent)[0])
	assert.Equal(t, []byte{0x90, ButtonPlay, byte(LEDOn)}, []byte((*sent)[2]))

	*sent = nil
	require.NoError(t, s.Show(cuestack.State{CurrentIndex: 1, Total: 2, Complete: true}))
	require.Len(t, *sent, 3)
	assert.True(t, bytes.Contains((*sent)[0], append(header, byte(ColorRed))))
	assert.Equal(t, []byte{0x90, ButtonPlay, byte(LEDOff)}, []byte((*sent)[2]))
}
