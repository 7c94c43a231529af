package raster

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"

	"github.com/toricodesthings/docmatch/internal/docerr"
	"github.com/toricodesthings/docmatch/internal/document"
)

// PageImage is a rendered page in a fixed color model: RGB when the
// renderer output is opaque, non-premultiplied RGBA otherwise.
type PageImage struct {
	Width    int
	Height   int
	Channels int
	Pix      []byte
}

// HasAlpha reports whether Pix carries a fourth channel.
func (p PageImage) HasAlpha() bool { return p.Channels == 4 }

// Render draws a 0-based page at zoom and normalizes the result.
func Render(ctx context.Context, doc document.Document, page int, zoom float64) (PageImage, error) {
	if err := ctx.Err(); err != nil {
		return PageImage{}, err
	}
	raw, err := doc.RenderPage(ctx, page, zoom)
	if err != nil {
		if ctx.Err() != nil {
			return PageImage{}, ctx.Err()
		}
		return PageImage{}, docerr.Raster(page, err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return PageImage{}, docerr.Raster(page, fmt.Errorf("decode png: %w", err))
	}
	pi := FromImage(img)
	if pi.Width == 0 || pi.Height == 0 {
		return PageImage{}, docerr.Raster(page, fmt.Errorf("empty raster %dx%d", pi.Width, pi.Height))
	}
	return pi, nil
}

type opaquer interface {
	Opaque() bool
}

// FromImage copies img into a PageImage, choosing 3 channels when every
// pixel is opaque.
func FromImage(img image.Image) PageImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	channels := 4
	if o, ok := img.(opaquer); ok && o.Opaque() {
		channels = 3
	}

	pix := make([]byte, 0, w*h*channels)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			pix = append(pix, c.R, c.G, c.B)
			if channels == 4 {
				pix = append(pix, c.A)
			}
		}
	}
	return PageImage{Width: w, Height: h, Channels: channels, Pix: pix}
}
