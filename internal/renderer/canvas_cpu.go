package renderer

import (
	"image"
	"image/draw"

	"golang.org/x/image/vector"

	"github.com/cwbudde/boldbrush/internal/brush"
)

// CPUCanvas implements software rasterization of brush shapes.
type CPUCanvas struct {
	layer     *image.RGBA64
	antialias bool
	commands  int

	// Reusable rasterizer and coverage buffer
	z       vector.Rasterizer
	maskPix []uint8
}

// NewCPUCanvas creates a transparent canvas covering bounds.
func NewCPUCanvas(bounds image.Rectangle, antialias bool) *CPUCanvas {
	return &CPUCanvas{
		layer:     image.NewRGBA64(bounds),
		antialias: antialias,
	}
}

// Draw rasterizes geom into a coverage mask restricted to its transformed
// bounding box and composites cmd.Colour through it.
func (c *CPUCanvas) Draw(geom *brush.Geometry, cmd Command) {
	c.commands++

	// Early-reject: nothing to fill or nothing visible
	if geom == nil || len(geom.Contours) == 0 {
		return
	}
	if cmd.Mode == ModeOver && cmd.Colour.A == 0 {
		return
	}

	r := cmd.Transform.pixelBounds(geom).Intersect(c.layer.Bounds())
	if r.Empty() {
		return
	}

	w, h := r.Dx(), r.Dy()
	c.z.Reset(w, h)
	ox, oy := float32(r.Min.X), float32(r.Min.Y)
	for _, contour := range geom.Contours {
		x, y := cmd.Transform.Apply(contour[0])
		c.z.MoveTo(x-ox, y-oy)
		for _, p := range contour[1:] {
			x, y = cmd.Transform.Apply(p)
			c.z.LineTo(x-ox, y-oy)
		}
		c.z.ClosePath()
	}

	mask := c.mask(w, h)
	c.z.DrawOp = draw.Src
	c.z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	if !c.antialias {
		for i, v := range mask.Pix {
			if v >= 0x80 {
				mask.Pix[i] = 0xff
			} else {
				mask.Pix[i] = 0
			}
		}
	}

	c.composite(r, mask, cmd)
}

// composite blends cmd.Colour into the layer rectangle r weighted by mask.
// Pixels outside the coverage are left untouched in every mode.
func (c *CPUCanvas) composite(r image.Rectangle, mask *image.Alpha, cmd Command) {
	src := [4]uint64{uint64(cmd.Colour.R), uint64(cmd.Colour.G), uint64(cmd.Colour.B), uint64(cmd.Colour.A)}
	if cmd.Mode == ModeErase {
		src = [4]uint64{}
	}
	for y := r.Min.Y; y < r.Max.Y; y++ {
		mrow := mask.Pix[(y-r.Min.Y)*mask.Stride:]
		off := c.layer.PixOffset(r.Min.X, y)
		for x := 0; x < r.Dx(); x++ {
			m := uint64(mrow[x]) * 0x101
			if m == 0 {
				off += 8
				continue
			}
			pix := c.layer.Pix[off : off+8 : off+8]
			// Fraction of the destination that survives.
			keep := 0xffff - m
			if cmd.Mode == ModeOver {
				keep = 0xffff - src[3]*m/0xffff
			}
			for ch := 0; ch < 4; ch++ {
				d := uint64(pix[2*ch])<<8 | uint64(pix[2*ch+1])
				v := (src[ch]*m + d*keep) / 0xffff
				pix[2*ch], pix[2*ch+1] = uint8(v>>8), uint8(v)
			}
			off += 8
		}
	}
}

// Layer returns the canvas pixels.
func (c *CPUCanvas) Layer() *image.RGBA64 {
	return c.layer
}

// Commands returns how many commands were submitted.
func (c *CPUCanvas) Commands() int {
	return c.commands
}

// mask returns a cleared w×h coverage buffer, reusing earlier allocations.
func (c *CPUCanvas) mask(w, h int) *image.Alpha {
	n := w * h
	if cap(c.maskPix) < n {
		c.maskPix = make([]uint8, n)
	}
	pix := c.maskPix[:n]
	clear(pix)
	return &image.Alpha{Pix: pix, Stride: w, Rect: image.Rect(0, 0, w, h)}
}
