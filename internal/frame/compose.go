package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage   = errors.New("empty image")
	ErrInvalidFrame = errors.New("frame has no drawable area")
)

// Compose paints frame as the bottom layer and the main image scaled into the inner rectangle.
// The main image keeps its aspect ratio and is centered; the frame shows through any letterbox.
// Both inputs may be SVG or any registered raster format. The result is PNG sized to the frame.
func Compose(main, frame []byte) ([]byte, error) {
	canvas, err := decodeFrame(frame)
	if err != nil {
		return nil, err
	}
	inner := image.Rect(Border, Border, canvas.Bounds().Dx()-Border, canvas.Bounds().Dy()-Border)
	if inner.Empty() {
		return nil, ErrInvalidFrame
	}

	content, err := decodeMain(main, inner)
	if err != nil {
		return nil, fmt.Errorf("frame: decode main image: %w", err)
	}
	dst := fit(content.Bounds().Size(), inner)
	if content.Bounds().Size() == dst.Size() {
		draw.Draw(canvas, dst, content, content.Bounds().Min, draw.Over)
	} else {
		xdraw.CatmullRom.Scale(canvas, dst, content, content.Bounds(), xdraw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("frame: encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeFrame(data []byte) (*image.RGBA, error) {
	if isSVG(data) {
		icon, err := readSVG(data)
		if err != nil {
			return nil, fmt.Errorf("frame: decode frame: %w", err)
		}
		w, h := int(icon.ViewBox.W), int(icon.ViewBox.H)
		if w <= 0 || h <= 0 {
			w, h = Width, Height
		}
		return rasterize(icon, w, h), nil
	}
	img, err := decode(data, 0, 0)
	if err != nil {
		return nil, fmt.Errorf("frame: decode frame: %w", err)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, img.Bounds().Dx(), img.Bounds().Dy()))
	draw.Draw(canvas, canvas.Bounds(), img, img.Bounds().Min, draw.Src)
	return canvas, nil
}

// decodeMain rasterizes SVG input directly at its fitted size inside box.
func decodeMain(data []byte, box image.Rectangle) (image.Image, error) {
	if len(data) == 0 || !isSVG(data) {
		return decode(data, 0, 0)
	}
	icon, err := readSVG(data)
	if err != nil {
		return nil, err
	}
	size := image.Pt(int(icon.ViewBox.W), int(icon.ViewBox.H))
	r := fit(size, box)
	return rasterize(icon, r.Dx(), r.Dy()), nil
}

// fit returns the largest rectangle with src's aspect ratio centered in box.
// A degenerate src fills box.
func fit(src image.Point, box image.Rectangle) image.Rectangle {
	if src.X <= 0 || src.Y <= 0 {
		return box
	}
	w, h := box.Dx(), box.Dy()
	if src.X*h > src.Y*w {
		h = max(src.Y*w/src.X, 1)
	} else {
		w = max(src.X*h/src.Y, 1)
	}
	origin := box.Min.Add(image.Pt((box.Dx()-w)/2, (box.Dy()-h)/2))
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(w, h))}
}

// decode reads an image. SVG input is rasterized at w x h.
func decode(data []byte, w, h int) (image.Image, error) {
	if len(data) == 0 {
		return nil, ErrEmptyImage
	}
	if isSVG(data) {
		icon, err := readSVG(data)
		if err != nil {
			return nil, err
		}
		if w <= 0 || h <= 0 {
			w, h = int(icon.ViewBox.W), int(icon.ViewBox.H)
		}
		return rasterize(icon, w, h), nil
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	return img, err
}

func readSVG(data []byte) (*oksvg.SvgIcon, error) {
	return oksvg.ReadIconStream(bytes.NewReader(data), oksvg.WarnErrorMode)
}

func rasterize(icon *oksvg.SvgIcon, w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	icon.SetTarget(0, 0, float64(w), float64(h))
	scanner := rasterx.NewScannerGV(w, h, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)
	return img
}

func isSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	head = bytes.TrimSpace(head)
	return bytes.HasPrefix(head, []byte("<svg")) ||
		(bytes.HasPrefix(head, []byte("<?xml")) && bytes.Contains(head, []byte("<svg")))
}
