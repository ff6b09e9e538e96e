package frame

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// Downscale returns a reduced copy of the frame at 1/factor scale, keeping
// the original sequence number and timestamp.  It is used for coarse
// full-frame scans where pixel accuracy does not matter yet.  A factor of
// one or less returns the frame unchanged.
func Downscale(f *Frame, factor int) *Frame {
	if factor <= 1 {
		return f
	}

	w := f.Width() / factor
	h := f.Height() / factor

	if w < 1 || h < 1 {
		return f
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), f.RGBA(), f.RGBA().Bounds(), xdraw.Src, nil)

	return NewFrame(dst, f.Seq(), f.Timestamp())
}
