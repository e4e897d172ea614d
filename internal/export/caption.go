package export

import (
	"image"
	"image/color"
	"image/draw"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Caption returns a copy of img with text drawn on a dark band at the
// bottom-left corner. The input image is not modified.
func Caption(img image.Image, text string) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(b)
	draw.Draw(out, b, img, b.Min, draw.Src)
	if strings.TrimSpace(text) == "" {
		return out
	}

	face := basicfont.Face7x13
	pad := 6
	dr := &font.Drawer{Dst: out, Src: image.NewUniform(color.White), Face: face}
	tw := dr.MeasureString(text).Ceil()
	x := b.Min.X + 8
	y := b.Max.Y - 6

	band := image.Rect(x-pad, y-face.Metrics().Ascent.Ceil()-pad, x+tw+pad, y+pad/2).Intersect(b)
	draw.Draw(out, band, image.NewUniform(color.NRGBA{A: 200}), image.Point{}, draw.Over)

	shadow := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.NRGBA{A: 180}),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x + 1), Y: fixed.I(y + 1)},
	}
	shadow.DrawString(text)

	dr.Dot = fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)}
	dr.DrawString(text)
	return out
}
