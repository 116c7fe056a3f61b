package main

import (
	"fmt"
	"image/color"
	"io"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2"

	"showcall/lib/streamdeck"
	"showcall/lib/xtouch"
)

var watchPalette = []color.RGBA{
	{220, 50, 50, 255},
	{50, 180, 50, 255},
	{50, 100, 220, 255},
	{220, 160, 30, 255},
	{180, 50, 180, 255},
	{50, 180, 180, 255},
	{220, 120, 50, 255},
	{100, 100, 200, 255},
}

var watchLCDColors = []xtouch.LCDColor{
	xtouch.ColorRed,
	xtouch.ColorGreen,
	xtouch.ColorYellow,
	xtouch.ColorBlue,
	xtouch.ColorMagenta,
	xtouch.ColorCyan,
	xtouch.ColorWhite,
}

// newSurfacesWatchCommand is a wiring check: it paints test patterns
// and prints every input until interrupted, without touching the mixer.
func newSurfacesWatchCommand() *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "watch <streamdeck|xtouch>",
		Short: "Print input from a surface and draw a test pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "streamdeck":
				return watchStreamDeck(cmd)
			case "xtouch":
				defer midi.CloseDriver()
				return watchXTouch(cmd, port)
			}
			return fmt.Errorf("unknown surface %q (want streamdeck or xtouch)", args[0])
		},
	}
	cmd.Flags().StringVar(&port, "port", defaultXTouchPort, "MIDI port name substring for the X-Touch")
	return cmd
}

func drawWatchKey(dev *streamdeck.Device, key int, active bool) error {
	m := dev.Model()
	bg := watchPalette[(key%m.KeyCols)%len(watchPalette)]
	if !active {
		bg = streamdeck.Dim(bg)
	}
	return dev.SetKeyImage(key, streamdeck.KeyImage(m.KeySize, bg, color.White, fmt.Sprintf("Key %d", key+1)))
}

func watchStreamDeck(cmd *cobra.Command) error {
	dev, err := streamdeck.Open()
	if err != nil {
		return err
	}
	defer dev.Close()

	out := cmd.OutOrStdout()
	m := dev.Model()
	fmt.Fprintf(out, "Connected to Stream Deck %s (serial %s)\n", m.Name, dev.SerialNumber())
	if err := dev.SetBrightness(80); err != nil {
		return err
	}
	for key := range m.Keys {
		if err := drawWatchKey(dev, key, false); err != nil {
			return err
		}
	}
	if m.LCDWidth > 0 {
		panels := make([]string, m.Encoders)
		for i := range panels {
			panels[i] = fmt.Sprintf("Encoder %d", i+1)
		}
		strip := streamdeck.StripImage(m.LCDWidth, m.LCDHeight, color.Black, color.White, panels)
		if err := dev.SetLCDImage(0, 0, strip); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	events := make(chan streamdeck.InputEvent, 64)
	readErr := make(chan error, 1)
	go func() { readErr <- dev.ReadInput(events) }()

	active := make([]bool, m.Keys)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case err := <-readErr:
			return err
		case ev := <-events:
			printDeckEvent(out, ev)
			if ev.Key != nil && ev.Key.Pressed && ev.Key.Key < len(active) {
				active[ev.Key.Key] = !active[ev.Key.Key]
				if err := drawWatchKey(dev, ev.Key.Key, active[ev.Key.Key]); err != nil {
					return err
				}
			}
		}
	}
}

func printDeckEvent(out io.Writer, ev streamdeck.InputEvent) {
	switch {
	case ev.Key != nil:
		fmt.Fprintf(out, "key %d pressed=%v\n", ev.Key.Key+1, ev.Key.Pressed)
	case ev.Encoder != nil && ev.Encoder.Delta != 0:
		fmt.Fprintf(out, "encoder %d turned %+d\n", ev.Encoder.Encoder+1, ev.Encoder.Delta)
	case ev.Encoder != nil:
		fmt.Fprintf(out, "encoder %d pressed=%v\n", ev.Encoder.Encoder+1, ev.Encoder.Pressed)
	case ev.Touch != nil:
		fmt.Fprintf(out, "touch x=%d y=%d long=%v\n", ev.Touch.X, ev.Touch.Y, ev.Touch.Long)
	}
}

func watchXTouch(cmd *cobra.Command, name string) error {
	in, err := xtouch.FindInPort(name)
	if err != nil {
		ins, _ := xtouch.Ports()
		fmt.Fprintln(cmd.ErrOrStderr(), "Available MIDI input ports:")
		for _, p := range ins {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s\n", p)
		}
		return err
	}
	outPort, err := xtouch.FindOutPort(name)
	if err != nil {
		return err
	}
	display, err := xtouch.NewOutput(outPort, xtouch.DeviceIDXTouch)
	if err != nil {
		return err
	}

	shade := make([]int, 8)
	paint := func(strip int) error {
		c := watchLCDColors[shade[strip]%len(watchLCDColors)]
		return display.SetLCD(uint8(strip), c, fmt.Sprintf("Strip %d", strip+1), fmt.Sprintf("C%d", shade[strip]))
	}
	for i := range shade {
		if err := paint(i); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Listening on %s\n", in)
	events := make(chan xtouch.Event, 64)
	stopListen, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		if ev := xtouch.Decode(msg); ev != nil {
			select {
			case events <- ev:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("listen on %s: %w", in, err)
	}
	defer stopListen()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case ev := <-events:
			fmt.Fprintln(out, ev)
			if enc, ok := ev.(xtouch.EncoderEvent); ok && int(enc.Encoder) < len(shade) {
				i := int(enc.Encoder)
				shade[i] = max(shade[i]+enc.Delta, 0)
				if err := paint(i); err != nil {
					return err
				}
			}
		}
	}
}
