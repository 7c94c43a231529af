// Package doctest provides an in-memory document.Document for tests.
package doctest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"sync/atomic"
)

// Doc serves fixed per-page text and images.
type Doc struct {
	Texts  []string
	Images []image.Image

	CountErr  error
	TextErr   map[int]error
	RenderErr map[int]error
	// Block makes RenderPage wait for ctx cancellation on these pages.
	Block map[int]bool

	Renders atomic.Int32
	Closed  atomic.Bool
}

func (d *Doc) PageCount(ctx context.Context) (int, error) {
	if d.CountErr != nil {
		return 0, d.CountErr
	}
	return len(d.Images), nil
}

func (d *Doc) ExtractText(ctx context.Context, page int) (string, error) {
	if err := d.TextErr[page]; err != nil {
		return "", err
	}
	if page < 0 || page >= len(d.Images) {
		return "", fmt.Errorf("page index %d out of range", page)
	}
	if page >= len(d.Texts) {
		return "", nil
	}
	return d.Texts[page], nil
}

func (d *Doc) RenderPage(ctx context.Context, page int, zoom float64) ([]byte, error) {
	d.Renders.Add(1)
	if d.Block[page] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := d.RenderErr[page]; err != nil {
		return nil, err
	}
	if page < 0 || page >= len(d.Images) {
		return nil, fmt.Errorf("page index %d out of range", page)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, d.Images[page]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Doc) Close() error {
	d.Closed.Store(true)
	return nil
}

// Noise returns a deterministic pseudo-random opaque image.
func Noise(seed int64, w, h int) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(r.Intn(256))
		img.Pix[i+1] = uint8(r.Intn(256))
		img.Pix[i+2] = uint8(r.Intn(256))
		img.Pix[i+3] = 0xff
	}
	return img
}

// WithAlpha copies img into an NRGBA whose alpha varies but whose color
// channels are unchanged.
func WithAlpha(img *image.RGBA) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out.SetNRGBA(x, y, color.NRGBA{R: c.R, G: c.G, B: c.B, A: uint8(128 + (x+y)%100)})
		}
	}
	return out
}
