// Package xtouch reads a Behringer X-Touch over MIDI and drives the cue
// stack from its transport section.
package xtouch

import (
	"fmt"
	"strings"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

const (
	DeviceIDXTouch   = 0x14
	DeviceIDExtender = 0x15
)

const (
	CCFootSwitch1  = 64
	CCFootSwitch2  = 67
	CCEncoderFirst = 80
	CCEncoderLast  = 87
	CCJogWheel     = 88
)

const (
	NoteButtonFirst = 0
	NoteButtonLast  = 103
)

type Event interface {
	String() string
}

type ButtonEvent struct {
	Button  uint8
	Pressed bool
}

func (e ButtonEvent) String() string {
	return fmt.Sprintf("Button %d %s", e.Button, pressed(e.Pressed))
}

type EncoderEvent struct {
	Encoder uint8
	Delta   int
}

func (e EncoderEvent) String() string {
	return fmt.Sprintf("Encoder %d %+d", e.Encoder, e.Delta)
}

type JogWheelEvent struct {
	Clockwise bool
}

func (e JogWheelEvent) String() string {
	if e.Clockwise {
		return "Jog wheel CW"
	}
	return "Jog wheel CCW"
}

type FootSwitchEvent struct {
	Switch  uint8
	Pressed bool
}

func (e FootSwitchEvent) String() string {
	return fmt.Sprintf("Foot switch %d %s", e.Switch, pressed(e.Pressed))
}

func pressed(b bool) string {
	if b {
		return "pressed"
	}
	return "released"
}

// Decode maps one MIDI message to a surface event, or nil for messages
// the surface does not use. Encoders are read in relative mode.
func Decode(msg midi.Message) Event {
	var channel, a, b uint8
	switch {
	case msg.GetNoteOn(&channel, &a, &b):
		return decodeNote(a, b > 0)
	case msg.GetNoteOff(&channel, &a, &b):
		return decodeNote(a, false)
	case msg.GetControlChange(&channel, &a, &b):
		return decodeCC(a, b)
	}
	return nil
}

func decodeNote(key uint8, down bool) Event {
	if key >= NoteButtonFirst && key <= NoteButtonLast {
		return ButtonEvent{Button: key, Pressed: down}
	}
	return nil
}

func decodeCC(controller, value uint8) Event {
	switch {
	case controller >= CCEncoderFirst && controller <= CCEncoderLast:
		delta := 0
		switch value {
		case 65:
			delta = 1
		case 1:
			delta = -1
		}
		return EncoderEvent{Encoder: controller - CCEncoderFirst, Delta: delta}
	case controller == CCJogWheel:
		return JogWheelEvent{Clockwise: value == 65}
	case controller == CCFootSwitch1:
		return FootSwitchEvent{Switch: 1, Pressed: value > 0}
	case controller == CCFootSwitch2:
		return FootSwitchEvent{Switch: 2, Pressed: value > 0}
	}
	return nil
}

func FindInPort(substr string) (drivers.In, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetInPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("xtouch: no MIDI input port matching %q", substr)
}

func FindOutPort(substr string) (drivers.Out, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetOutPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("xtouch: no MIDI output port matching %q", substr)
}

// Ports lists MIDI input and output port names.
func Ports() (in, out []string) {
	for _, p := range midi.GetInPorts() {
		in = append(in, p.String())
	}
	for _, p := range midi.GetOutPorts() {
		out = append(out, p.String())
	}
	return in, out
}
