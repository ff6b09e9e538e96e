package frame

import (
	"image"
	"image/color"
	"testing"
	"time"
)

// solidFrame builds a uniform frame for tests
func solidFrame(w, h int, c color.RGBA) *Frame {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return NewFrame(img, 1, time.Now())
}

func TestGrayConversion(t *testing.T) {
	f := solidFrame(8, 8, color.RGBA{R: 100, G: 200, B: 50, A: 255})

	// 299*100 + 587*200 + 114*50 = 153000 -> 153
	want := uint8(153)

	if got := f.GrayAt(3, 3); got != want {
		t.Errorf("GrayAt(3,3) = %d, want %d", got, want)
	}

	if len(f.Gray()) != 64 {
		t.Errorf("Gray() length = %d, want 64", len(f.Gray()))
	}
}

func TestGrayAtOutOfBounds(t *testing.T) {
	f := solidFrame(4, 4, color.RGBA{R: 255, G: 255, B: 255, A: 255})

	if got := f.GrayAt(-1, 0); got != 0 {
		t.Errorf("GrayAt(-1,0) = %d, want 0", got)
	}

	if got := f.GrayAt(4, 4); got != 0 {
		t.Errorf("GrayAt(4,4) = %d, want 0", got)
	}
}

func TestStoreRetiresPrevious(t *testing.T) {
	s := NewStore()

	if s.Current() != nil || s.Previous() != nil {
		t.Fatal("empty store should hold no frames")
	}

	a := image.NewRGBA(image.Rect(0, 0, 4, 4))
	b := image.NewRGBA(image.Rect(0, 0, 4, 4))

	fa := s.Push(a, time.Now())

	if s.Current() != fa || s.Previous() != nil {
		t.Fatal("first push should become current with no previous")
	}

	fb := s.Push(b, time.Now())

	if s.Current() != fb || s.Previous() != fa {
		t.Fatal("second push should retire first frame to previous")
	}

	if fb.Seq() != fa.Seq()+1 {
		t.Errorf("sequence numbers not increasing: %d then %d", fa.Seq(), fb.Seq())
	}
}

func TestStoreResetKeepsSequence(t *testing.T) {
	s := NewStore()
	s.Push(image.NewRGBA(image.Rect(0, 0, 4, 4)), time.Now())
	seq := s.Seq()

	s.Reset()

	if s.Current() != nil || s.Previous() != nil {
		t.Fatal("reset should discard stored frames")
	}

	f := s.Push(image.NewRGBA(image.Rect(0, 0, 4, 4)), time.Now())

	if f.Seq() <= seq {
		t.Errorf("sequence after reset = %d, want > %d", f.Seq(), seq)
	}
}

func TestDownscale(t *testing.T) {
	f := solidFrame(64, 32, color.RGBA{R: 120, G: 120, B: 120, A: 255})

	small := Downscale(f, 4)

	if small.Width() != 16 || small.Height() != 8 {
		t.Errorf("downscaled size = %dx%d, want 16x8", small.Width(), small.Height())
	}

	if small.Seq() != f.Seq() {
		t.Errorf("downscale should keep sequence number")
	}

	// uniform input stays uniform
	if g := small.GrayAt(8, 4); g < 118 || g > 122 {
		t.Errorf("downscaled gray = %d, want ~120", g)
	}
}
