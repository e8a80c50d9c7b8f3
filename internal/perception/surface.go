// Package perception extracts lightweight behavioral signals from a video
// stream using pixel heuristics only. Frames are downsampled into an
// offscreen Surface and each heuristic is a pure function over it.
package perception

import "image"

// Surface is a row-major RGBA pixel buffer, 4 bytes per pixel.
type Surface struct {
	W, H int
	Pix  []uint8
}

func NewSurface(w, h int) *Surface {
	if w < 0 {
		w = 0
	}
	if h < 0 {
		h = 0
	}
	return &Surface{W: w, H: h, Pix: make([]uint8, w*h*4)}
}

// RGB returns the colour of pixel (x, y).
func (s *Surface) RGB(x, y int) (r, g, b uint8) {
	i := (y*s.W + x) * 4
	return s.Pix[i], s.Pix[i+1], s.Pix[i+2]
}

func (s *Surface) Set(x, y int, r, g, b uint8) {
	i := (y*s.W + x) * 4
	s.Pix[i], s.Pix[i+1], s.Pix[i+2], s.Pix[i+3] = r, g, b, 0xff
}

// Fill paints reg with one colour. Handy for building synthetic frames.
func (s *Surface) Fill(reg Region, r, g, b uint8) {
	reg = reg.clip(s)
	for y := reg.Y0; y < reg.Y1; y++ {
		for x := reg.X0; x < reg.X1; x++ {
			s.Set(x, y, r, g, b)
		}
	}
}

func (s *Surface) Clone() *Surface {
	out := &Surface{W: s.W, H: s.H, Pix: make([]uint8, len(s.Pix))}
	copy(out.Pix, s.Pix)
	return out
}

func (s *Surface) sameSize(o *Surface) bool {
	return o != nil && s.W == o.W && s.H == o.H
}

// Region is a half-open pixel rectangle [X0,X1) x [Y0,Y1).
type Region struct {
	X0, Y0, X1, Y1 int
}

// Rel builds a Region from fractions of the surface size.
func (s *Surface) Rel(x0, y0, x1, y1 float64) Region {
	return Region{
		X0: int(x0 * float64(s.W)),
		Y0: int(y0 * float64(s.H)),
		X1: int(x1 * float64(s.W)),
		Y1: int(y1 * float64(s.H)),
	}.clip(s)
}

func (r Region) clip(s *Surface) Region {
	r.X0 = min(max(r.X0, 0), s.W)
	r.X1 = min(max(r.X1, r.X0), s.W)
	r.Y0 = min(max(r.Y0, 0), s.H)
	r.Y1 = min(max(r.Y1, r.Y0), s.H)
	return r
}

func (r Region) Empty() bool { return r.X1 <= r.X0 || r.Y1 <= r.Y0 }

// Downsample draws src into dst at the given scale (0.25 keeps a quarter of
// each axis) using nearest-neighbour sampling. dst is resized when the
// scaled source size changes and is returned.
func Downsample(dst *Surface, src image.Image, scale float64) *Surface {
	b := src.Bounds()
	w := max(int(float64(b.Dx())*scale), 1)
	h := max(int(float64(b.Dy())*scale), 1)
	if dst == nil || dst.W != w || dst.H != h {
		dst = NewSurface(w, h)
	}

	rgba, fast := src.(*image.RGBA)
	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*b.Dy()/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*b.Dx()/w
			if fast {
				i := rgba.PixOffset(sx, sy)
				dst.Set(x, y, rgba.Pix[i], rgba.Pix[i+1], rgba.Pix[i+2])
				continue
			}
			r, g, bb, _ := src.At(sx, sy).RGBA()
			dst.Set(x, y, uint8(r>>8), uint8(g>>8), uint8(bb>>8))
		}
	}
	return dst
}

// ToImage converts a surface back to an image, mostly for tests and
// debugging snapshots.
func (s *Surface) ToImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, s.W, s.H))
	copy(img.Pix, s.Pix)
	return img
}
