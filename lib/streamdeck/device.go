// Package streamdeck drives Elgato Stream Deck panels over USB HID and
// binds them to presets and the cue stack.
package streamdeck

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	xdraw "golang.org/x/image/draw"

	"rafaelmartins.com/p/usbhid"
)

const elgatoVendorID = 0x0fd9

var ErrNoDevice = errors.New("streamdeck: no device found")

type Model struct {
	Name      string
	Keys      int
	KeyRows   int
	KeyCols   int
	KeySize   int
	FlipKeys  bool
	Encoders  int
	LCDWidth  int
	LCDHeight int
}

var ModelXL = Model{
	Name:     "XL",
	Keys:     32,
	KeyRows:  4,
	KeyCols:  8,
	KeySize:  96,
	FlipKeys: true,
}

var ModelPlus = Model{
	Name:      "Plus",
	Keys:      8,
	KeyRows:   2,
	KeyCols:   4,
	KeySize:   120,
	Encoders:  4,
	LCDWidth:  800,
	LCDHeight: 100,
}

var productModels = map[uint16]*Model{
	0x006c: &ModelXL,
	0x008f: &ModelXL,
	0x0084: &ModelPlus,
}

// Info describes an attached panel without opening it.
type Info struct {
	Model  string
	Serial string
}

func enumerate(match func(*Model) bool) ([]*usbhid.Device, error) {
	devices, err := usbhid.Enumerate(func(dev *usbhid.Device) bool {
		m := productModels[dev.ProductId()]
		return dev.VendorId() == elgatoVendorID && m != nil && match(m)
	})
	if err != nil {
		return nil, fmt.Errorf("streamdeck: enumerate: %w", err)
	}
	return devices, nil
}

// List reports every supported panel that is plugged in.
func List() ([]Info, error) {
	devices, err := enumerate(func(*Model) bool { return true })
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(devices))
	for _, dev := range devices {
		out = append(out, Info{Model: productModels[dev.ProductId()].Name, Serial: dev.SerialNumber()})
	}
	return out, nil
}

type Device struct {
	dev   *usbhid.Device
	model *Model
}

// Open opens the first supported panel.
func Open() (*Device, error) {
	return open(func(*Model) bool { return true })
}

func OpenModel(m *Model) (*Device, error) {
	return open(func(candidate *Model) bool { return candidate == m })
}

func open(match func(*Model) bool) (*Device, error) {
	devices, err := enumerate(match)
	if err != nil {
		return nil, err
	}
	if len(devices) == 0 {
		return nil, ErrNoDevice
	}
	dev := devices[0]
	if err := dev.Open(true); err != nil {
		return nil, fmt.Errorf("streamdeck: open: %w", err)
	}
	return &Device{dev: dev, model: productModels[dev.ProductId()]}, nil
}

func (d *Device) Model() *Model        { return d.model }
func (d *Device) Close() error         { return d.dev.Close() }
func (d *Device) SerialNumber() string { return d.dev.SerialNumber() }

func (d *Device) SetBrightness(perc byte) error {
	pl := make([]byte, d.dev.GetFeatureReportLength())
	pl[0] = 0x08
	pl[1] = min(perc, 100)
	return d.dev.SetFeatureReport(3, pl)
}

func (d *Device) Reset() error {
	pl := make([]byte, d.dev.GetFeatureReportLength())
	pl[0] = 0x02
	return d.dev.SetFeatureReport(3, pl)
}

// SetKeyImage scales img to the key size and uploads it as JPEG.
func (d *Device) SetKeyImage(key int, img image.Image) error {
	if key < 0 || key >= d.model.Keys {
		return fmt.Errorf("streamdeck: invalid key %d", key)
	}
	sz := d.model.KeySize
	scaled := image.NewRGBA(image.Rect(0, 0, sz, sz))
	xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var src image.Image = scaled
	if d.model.FlipKeys {
		src = rotate180(scaled)
	}
	data, err := encodeJPEG(src)
	if err != nil {
		return err
	}

	hdr := func(page uint16, last bool, n int) []byte {
		return []byte{0x02, 0x07, byte(key), boolByte(last), byte(n), byte(n >> 8), byte(page), byte(page >> 8)}
	}
	return d.sendPaged(8, data, hdr)
}

// SetLCDImage uploads img to the touch strip at x,y.
func (d *Device) SetLCDImage(x, y int, img image.Image) error {
	if d.model.LCDWidth == 0 {
		return fmt.Errorf("streamdeck: %s has no LCD", d.model.Name)
	}
	b := img.Bounds()
	data, err := encodeJPEG(img)
	if err != nil {
		return err
	}

	hdr := func(page uint16, last bool, n int) []byte {
		h := make([]byte, 16)
		h[0] = 0x02
		h[1] = 0x0c
		binary.LittleEndian.PutUint16(h[2:], uint16(x))
		binary.LittleEndian.PutUint16(h[4:], uint16(y))
		binary.LittleEndian.PutUint16(h[6:], uint16(b.Dx()))
		binary.LittleEndian.PutUint16(h[8:], uint16(b.Dy()))
		h[10] = boolByte(last)
		binary.LittleEndian.PutUint16(h[11:], page)
		binary.LittleEndian.PutUint16(h[13:], uint16(n))
		return h
	}
	return d.sendPaged(16, data, hdr)
}

// sendPaged splits data into output reports, each prefixed by a header
// of hdrLen bytes and zero padded to the report length.
func (d *Device) sendPaged(hdrLen int, data []byte, header func(page uint16, last bool, n int) []byte) error {
	reportLen := int(d.dev.GetOutputReportLength())
	chunkLen := reportLen - hdrLen

	for page, start := uint16(0), 0; start < len(data); page++ {
		end := min(start+chunkLen, len(data))
		chunk := data[start:end]

		report := make([]byte, reportLen)
		copy(report, header(page, end == len(data), len(chunk)))
		copy(report[hdrLen:], chunk)
		if err := d.dev.SetOutputReport(2, report); err != nil {
			return fmt.Errorf("streamdeck: write: %w", err)
		}
		start = end
	}
	return nil
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		return nil, fmt.Errorf("streamdeck: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func rotate180(src *image.RGBA) *image.RGBA {
	b := src.Bounds()
	out := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(b.Max.X-1-x, b.Max.Y-1-y, src.At(x, y))
		}
	}
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

type KeyEvent struct {
	Key     int
	Pressed bool
}

// EncoderEvent is either a press change or a turn. Delta is zero for
// presses.
type EncoderEvent struct {
	Encoder int
	Pressed bool
	Delta   int
}

type TouchEvent struct {
	X, Y int
	Long bool
}

type InputEvent struct {
	Time    time.Time
	Key     *KeyEvent
	Encoder *EncoderEvent
	Touch   *TouchEvent
}

// ReadInput blocks reading HID input reports and sends one event per
// state change until the device fails or is closed.
func (d *Device) ReadInput(ch chan<- InputEvent) error {
	p := newParser(d.model)
	for {
		_, buf, err := d.dev.GetInputReport()
		if err != nil {
			return fmt.Errorf("streamdeck: read: %w", err)
		}
		for _, ev := range p.parse(buf, time.Now()) {
			ch <- ev
		}
	}
}

// parser turns raw input reports into events. It tracks previous key
// and encoder states since the panel reports full state each time.
type parser struct {
	model    *Model
	keys     []byte
	encoders []byte
}

func newParser(m *Model) *parser {
	return &parser{model: m, keys: make([]byte, m.Keys), encoders: make([]byte, m.Encoders)}
}

func (p *parser) parse(buf []byte, t time.Time) []InputEvent {
	if len(buf) < 4 {
		return nil
	}
	var out []InputEvent
	switch buf[0] {
	case 0x00:
		for i := 0; i < p.model.Keys && 3+i < len(buf); i++ {
			st := buf[3+i]
			if st != p.keys[i] {
				p.keys[i] = st
				out = append(out, InputEvent{Time: t, Key: &KeyEvent{Key: i, Pressed: st > 0}})
			}
		}
	case 0x03:
		if p.model.Encoders == 0 || len(buf) < 4+p.model.Encoders {
			return nil
		}
		for i := 0; i < p.model.Encoders; i++ {
			v := buf[4+i]
			switch buf[3] {
			case 0x00:
				if v != p.encoders[i] {
					p.encoders[i] = v
					out = append(out, InputEvent{Time: t, Encoder: &EncoderEvent{Encoder: i, Pressed: v > 0}})
				}
			case 0x01:
				if delta := int(int8(v)); delta != 0 {
					out = append(out, InputEvent{Time: t, Encoder: &EncoderEvent{Encoder: i, Delta: delta}})
				}
			}
		}
	case 0x02:
		if len(buf) < 9 {
			return nil
		}
		out = append(out, InputEvent{Time: t, Touch: &TouchEvent{
			X:    int(binary.LittleEndian.Uint16(buf[5:7])),
			Y:    int(binary.LittleEndian.Uint16(buf[7:9])),
			Long: buf[3] == 2,
		}})
	}
	return out
}
