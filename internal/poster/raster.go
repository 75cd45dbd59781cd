package poster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/kjstillabower/weather-moment-nft/internal/models"
)

var (
	fontsOnce   sync.Once
	boldFont    *opentype.Font
	regularFont *opentype.Font
	fontsErr    error
)

func loadFonts() error {
	fontsOnce.Do(func() {
		boldFont, fontsErr = opentype.Parse(gobold.TTF)
		if fontsErr != nil {
			return
		}
		regularFont, fontsErr = opentype.Parse(goregular.TTF)
	})
	return fontsErr
}

// RenderPNG draws the same layout as RenderSVG onto a raster canvas.
// Glyphs missing from the Go fonts (e.g. CJK) render as placeholder boxes.
func RenderPNG(f models.PosterFields, width, height int) ([]byte, error) {
	img, err := RenderImage(f, width, height)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("poster: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderImage draws the poster into a new RGBA image.
func RenderImage(f models.PosterFields, width, height int) (*image.RGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("poster: invalid size %dx%d", width, height)
	}
	if err := loadFonts(); err != nil {
		return nil, fmt.Errorf("poster: load fonts: %w", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	g := GradientFor(f.Weather, f.TimeOfDay)
	drawVerticalGradient(img, ParseHex(g.From), ParseHex(g.To))

	w, h := float64(width), float64(height)
	drawCircle(img, int(w*0.8), int(h*0.2), 60, whiteAlpha(0.1))
	drawCircle(img, int(w*0.2), int(h*0.8), 40, whiteAlpha(0.05))

	lines := []struct {
		text    string
		font    *opentype.Font
		size    float64
		y       float64
		opacity float64
	}{
		{f.City, boldFont, 42, cityY, 1},
		{f.Temperature + "°C", boldFont, 72, tempY, 1},
		{strings.ToUpper(f.Weather), regularFont, 24, weatherY, 0.9},
		{strings.ToUpper(f.TimeOfDay), regularFont, 18, timeY, 0.8},
		{Caption, regularFont, 14, captionY, 0.6},
	}
	for _, l := range lines {
		face, err := opentype.NewFace(l.font, &opentype.FaceOptions{Size: l.size, DPI: 72, Hinting: font.HintingFull})
		if err != nil {
			return nil, fmt.Errorf("poster: font face: %w", err)
		}
		drawCentered(img, face, l.text, width/2, int(h*l.y), whiteAlpha(l.opacity))
		face.Close()
	}

	lineY := int(h * dividerY)
	draw.Draw(img, image.Rect(int(w*dividerX1), lineY-1, int(w*dividerX2), lineY+1),
		image.NewUniform(whiteAlpha(0.3)), image.Point{}, draw.Over)
	return img, nil
}

func drawVerticalGradient(img *image.RGBA, from, to color.NRGBA) {
	b := img.Bounds()
	span := float64(b.Dy() - 1)
	if span <= 0 {
		span = 1
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		t := float64(y-b.Min.Y) / span
		c := color.RGBA{
			R: lerp(from.R, to.R, t),
			G: lerp(from.G, to.G, t),
			B: lerp(from.B, to.B, t),
			A: 255,
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func lerp(a, b uint8, t float64) uint8 {
	return uint8(float64(a) + (float64(b)-float64(a))*t + 0.5)
}

// circleMask is an alpha mask for a filled circle.
type circleMask struct {
	cx, cy, r int
}

func (c *circleMask) ColorModel() color.Model { return color.AlphaModel }

func (c *circleMask) Bounds() image.Rectangle {
	return image.Rect(c.cx-c.r, c.cy-c.r, c.cx+c.r, c.cy+c.r)
}

func (c *circleMask) At(x, y int) color.Color {
	dx, dy := float64(x-c.cx)+0.5, float64(y-c.cy)+0.5
	if dx*dx+dy*dy <= float64(c.r*c.r) {
		return color.Alpha{A: 255}
	}
	return color.Alpha{}
}

func drawCircle(img draw.Image, cx, cy, r int, fill color.Color) {
	m := &circleMask{cx: cx, cy: cy, r: r}
	draw.DrawMask(img, m.Bounds(), image.NewUniform(fill), image.Point{}, m, m.Bounds().Min, draw.Over)
}

func drawCentered(img draw.Image, face font.Face, s string, cx, baseline int, c color.Color) {
	d := &font.Drawer{Dst: img, Src: image.NewUniform(c), Face: face}
	width := d.MeasureString(s)
	d.Dot = fixed.Point26_6{X: fixed.I(cx) - width/2, Y: fixed.I(baseline)}
	d.DrawString(s)
}

func whiteAlpha(a float64) color.NRGBA {
	return color.NRGBA{R: 255, G: 255, B: 255, A: uint8(a*255 + 0.5)}
}

// ParseHex parses "#RRGGBB" into an opaque color. Malformed input yields black.
func ParseHex(s string) color.NRGBA {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.NRGBA{A: 255}
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{A: 255}
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
}
