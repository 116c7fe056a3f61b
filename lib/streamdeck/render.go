package streamdeck

import (
	"image"
	"image/color"
	"strconv"
	"strings"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	colorIdle  = color.RGBA{40, 40, 40, 255}
	colorEmpty = color.RGBA{0, 0, 0, 255}
)

// ParseColor reads #rgb or #rrggbb. Anything else yields the idle grey.
func ParseColor(s string) color.RGBA {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return colorIdle
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return colorIdle
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 255}
}

// Dim darkens c for keys that are not the focus.
func Dim(c color.RGBA) color.RGBA {
	return color.RGBA{c.R / 3, c.G / 3, c.B / 3, 255}
}

// KeyImage renders centred lines of text on a square key.
func KeyImage(size int, bg, fg color.Color, text string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, xdraw.Src)
	drawLines(img, img.Bounds(), fg, wrap(text, size/7))
	return img
}

// StripImage splits the LCD strip into equal panels, one text block
// each.
func StripImage(width, height int, bg, fg color.Color, panels []string) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.Draw(img, img.Bounds(), &image.Uniform{bg}, image.Point{}, xdraw.Src)
	if len(panels) == 0 {
		return img
	}
	w := width / len(panels)
	for i, text := range panels {
		r := image.Rect(i*w, 0, (i+1)*w, height)
		drawLines(img, r, fg, strings.Split(text, "\n"))
	}
	return img
}

func drawLines(img *image.RGBA, r image.Rectangle, fg color.Color, lines []string) {
	face := basicfont.Face7x13
	m := face.Metrics()
	lineHeight := m.Height.Ceil()
	top := r.Min.Y + (r.Dy()-lineHeight*len(lines))/2 + m.Ascent.Ceil()

	d := &font.Drawer{Dst: img, Src: &image.Uniform{fg}, Face: face}
	for i, line := range lines {
		width := d.MeasureString(line).Ceil()
		d.Dot = fixed.P(r.Min.X+(r.Dx()-width)/2, top+i*lineHeight)
		d.DrawString(line)
	}
}

// wrap breaks text on spaces so no line exceeds width characters.
// Explicit newlines are kept.
func wrap(text string, width int) []string {
	var out []string
	for _, para := range strings.Split(text, "\n") {
		line := ""
		for _, word := range strings.Fields(para) {
			switch {
			case line == "":
				line = word
			case len(line)+1+len(word) <= width:
				line += " " + word
			default:
				out = append(out, line)
				line = word
			}
		}
		out = append(out, line)
	}
	return out
}
