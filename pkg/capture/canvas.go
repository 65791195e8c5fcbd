package capture

import (
	"image"

	"golang.org/x/image/draw"
)

// Canvas is the off-screen raster target frames are drawn into before encoding.
// It is reused across ticks and is not safe for concurrent use.
type Canvas struct {
	img    *image.RGBA
	mirror bool
}

// NewCanvas allocates a width x height raster.
func NewCanvas(width, height int, mirror bool) *Canvas {
	return &Canvas{
		img:    image.NewRGBA(image.Rect(0, 0, width, height)),
		mirror: mirror,
	}
}

// Bounds returns the raster rectangle.
func (c *Canvas) Bounds() image.Rectangle {
	return c.img.Rect
}

// Image returns the raster. The same backing buffer is returned on every call.
func (c *Canvas) Image() *image.RGBA {
	return c.img
}

// Draw copies src into the canvas, scaling when the sizes differ.
func (c *Canvas) Draw(src image.Image) {
	dst := c.img.Rect
	sb := src.Bounds()
	if sb.Dx() == dst.Dx() && sb.Dy() == dst.Dy() {
		draw.Draw(c.img, dst, src, sb.Min, draw.Src)
	} else {
		draw.ApproxBiLinear.Scale(c.img, dst, src, sb, draw.Src, nil)
	}
	if c.mirror {
		c.flipHorizontal()
	}
}

func (c *Canvas) flipHorizontal() {
	w, h := c.img.Rect.Dx(), c.img.Rect.Dy()
	for y := 0; y < h; y++ {
		row := c.img.Pix[y*c.img.Stride : y*c.img.Stride+w*4]
		for l, r := 0, (w-1)*4; l < r; l, r = l+4, r-4 {
			for k := 0; k < 4; k++ {
				row[l+k], row[r+k] = row[r+k], row[l+k]
			}
		}
	}
}
