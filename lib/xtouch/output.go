package xtouch

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

type LCDColor uint8

const (
	ColorBlack   LCDColor = 0
	ColorRed     LCDColor = 1
	ColorGreen   LCDColor = 2
	ColorYellow  LCDColor = 3
	ColorBlue    LCDColor = 4
	ColorMagenta LCDColor = 5
	ColorCyan    LCDColor = 6
	ColorWhite   LCDColor = 7
)

type LEDState uint8

const (
	LEDOff   LEDState = 0
	LEDFlash LEDState = 64
	LEDOn    LEDState = 127
)

const scribbleWidth = 7

// Output writes LEDs and scribble strips. Send is the raw MIDI writer.
type Output struct {
	Send     func(msg midi.Message) error
	DeviceID uint8
}

func NewOutput(port drivers.Out, deviceID uint8) (*Output, error) {
	send, err := midi.SendTo(port)
	if err != nil {
		return nil, fmt.Errorf("xtouch: open output port: %w", err)
	}
	return &Output{Send: send, DeviceID: deviceID}, nil
}

func (o *Output) SetButtonLED(button uint8, state LEDState) error {
	return o.Send(midi.NoteOn(0, button, uint8(state)))
}

// SetLCD writes both lines of one scribble strip. Text is cut or
// space padded to the strip width.
func (o *Output) SetLCD(strip uint8, color LCDColor, upper, lower string) error {
	data := []byte{0x00, 0x20, 0x32, o.DeviceID, 0x4c, strip, byte(color)}
	data = append(data, fit(upper)...)
	data = append(data, fit(lower)...)
	return o.Send(midi.SysEx(data))
}

func fit(s string) []byte {
	out := []byte(fmt.Sprintf("%-*s", scribbleWidth, s))
	for i, c := range out {
		if c > 0x7e {
			out[i] = '?'
		}
	}
	return out[:scribbleWidth]
}
