package frame

import (
	"image"
	"sync"
	"time"
)

// Frame is an immutable snapshot of a single video frame.  Estimators only
// ever read from a Frame, so frames can be shared freely between goroutines
// once stored.
type Frame struct {
	// seq is the monotonically increasing frame sequence number
	seq uint64
	// ts is the capture timestamp supplied by the caller
	ts time.Time
	// img is the full resolution RGBA pixel buffer
	img *image.RGBA
	// width and height of the pixel buffer
	width  int
	height int
	// gray holds the lazily computed grayscale view, row major
	gray     []uint8
	grayOnce sync.Once
}

// NewFrame wraps an RGBA buffer as a frame snapshot.  The buffer must not be
// mutated by the caller after being handed over.
func NewFrame(img *image.RGBA, seq uint64, ts time.Time) *Frame {
	b := img.Bounds()
	return &Frame{
		seq:    seq,
		ts:     ts,
		img:    img,
		width:  b.Dx(),
		height: b.Dy(),
	}
}

// Seq returns the frame sequence number.
func (f *Frame) Seq() uint64 {
	return f.seq
}

// Timestamp returns the capture time of the frame.
func (f *Frame) Timestamp() time.Time {
	return f.ts
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.width
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.height
}

// RGBA returns the underlying pixel buffer.  Callers must treat it as
// read only.
func (f *Frame) RGBA() *image.RGBA {
	return f.img
}

// Contains reports whether the point lies inside the frame bounds.
func (f *Frame) Contains(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.width && y < f.height
}

// RGBAt returns the red, green and blue components at the given pixel.
// Out of bounds coordinates return zeros.
func (f *Frame) RGBAt(x, y int) (uint8, uint8, uint8) {
	if !f.Contains(x, y) {
		return 0, 0, 0
	}
	i := f.img.PixOffset(x+f.img.Rect.Min.X, y+f.img.Rect.Min.Y)
	p := f.img.Pix
	return p[i], p[i+1], p[i+2]
}

// Gray returns the grayscale view of the frame, converting it on first use.
// The slice is row major with stride Width().
func (f *Frame) Gray() []uint8 {
	f.grayOnce.Do(f.convertGray)
	return f.gray
}

// GrayAt returns the grayscale value at the given pixel, converting the
// frame on first use.  Out of bounds coordinates return zero.
func (f *Frame) GrayAt(x, y int) uint8 {
	if !f.Contains(x, y) {
		return 0
	}
	f.grayOnce.Do(f.convertGray)
	return f.gray[y*f.width+x]
}

// convertGray builds the grayscale view using ITU-R BT.601 integer weights.
func (f *Frame) convertGray() {
	g := make([]uint8, f.width*f.height)
	pix := f.img.Pix
	minX := f.img.Rect.Min.X
	minY := f.img.Rect.Min.Y

	for y := 0; y < f.height; y++ {
		row := f.img.PixOffset(minX, minY+y)

		for x := 0; x < f.width; x++ {
			i := row + x*4
			r := uint32(pix[i])
			gr := uint32(pix[i+1])
			b := uint32(pix[i+2])
			g[y*f.width+x] = uint8((299*r + 587*gr + 114*b) / 1000)
		}
	}

	f.gray = g
}

// Store holds the current and previous frame snapshots.  Storing a new frame
// retires the previous one; frames are never mutated once stored.
type Store struct {
	cur  *Frame
	prev *Frame
	seq  uint64
}

// NewStore creates an empty frame store.
func NewStore() *Store {
	return &Store{}
}

// Push stores a new frame built from the given buffer and returns it.  The
// previously current frame becomes the previous frame.
func (s *Store) Push(img *image.RGBA, ts time.Time) *Frame {
	s.seq++
	f := NewFrame(img, s.seq, ts)
	s.prev = s.cur
	s.cur = f
	return f
}

// Current returns the most recently stored frame, or nil before the first
// Push.
func (s *Store) Current() *Frame {
	return s.cur
}

// Previous returns the frame stored before the current one, or nil when
// fewer than two frames have been pushed.
func (s *Store) Previous() *Frame {
	return s.prev
}

// Seq returns the sequence number of the most recently stored frame.
func (s *Store) Seq() uint64 {
	return s.seq
}

// Reset discards all stored frames.  The sequence counter keeps increasing
// so stale results remain distinguishable.
func (s *Store) Reset() {
	s.cur = nil
	s.prev = nil
}
