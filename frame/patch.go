package frame

import (
	"math"
)

// Patch is a fixed odd-size grayscale appearance patch with precomputed
// mean and standard deviation for normalized correlation scoring.
type Patch struct {
	// Size is the patch side length, always odd
	Size int
	// Pix holds the grayscale values, row major, Size*Size entries
	Pix []float32
	// Mean of the patch values
	Mean float32
	// Std is the standard deviation of the patch values
	Std float32
}

// CapturePatch extracts an odd-size grayscale patch centered at (cx, cy).
// It returns false when the size is not odd or when the patch would cross
// the frame boundary.
func CapturePatch(f *Frame, cx, cy, size int) (Patch, bool) {
	if size < 3 || size%2 == 0 {
		return Patch{}, false
	}

	half := size / 2

	if cx-half < 0 || cy-half < 0 || cx+half >= f.Width() || cy+half >= f.Height() {
		return Patch{}, false
	}

	gray := f.Gray()
	w := f.Width()
	pix := make([]float32, size*size)
	var sum float64

	for dy := -half; dy <= half; dy++ {
		row := (cy + dy) * w

		for dx := -half; dx <= half; dx++ {
			v := float32(gray[row+cx+dx])
			pix[(dy+half)*size+(dx+half)] = v
			sum += float64(v)
		}
	}

	n := float64(size * size)
	mean := sum / n
	var varSum float64

	for _, v := range pix {
		d := float64(v) - mean
		varSum += d * d
	}

	return Patch{
		Size: size,
		Pix:  pix,
		Mean: float32(mean),
		Std:  float32(math.Sqrt(varSum / n)),
	}, true
}

// Clone returns a deep copy of the patch.
func (p Patch) Clone() Patch {
	out := p
	out.Pix = make([]float32, len(p.Pix))
	copy(out.Pix, p.Pix)
	return out
}

// BlendToward updates the patch by bounded exponential blending toward a
// freshly captured patch of the same size.  Mean and standard deviation are
// recomputed afterwards.  Patches of mismatched size are left unchanged.
func (p *Patch) BlendToward(fresh Patch, alpha float32) {
	if fresh.Size != p.Size || len(fresh.Pix) != len(p.Pix) {
		return
	}

	if alpha < 0 {
		alpha = 0
	} else if alpha > 1 {
		alpha = 1
	}

	var sum float64

	for i := range p.Pix {
		p.Pix[i] = (1-alpha)*p.Pix[i] + alpha*fresh.Pix[i]
		sum += float64(p.Pix[i])
	}

	n := float64(len(p.Pix))
	mean := sum / n
	var varSum float64

	for _, v := range p.Pix {
		d := float64(v) - mean
		varSum += d * d
	}

	p.Mean = float32(mean)
	p.Std = float32(math.Sqrt(varSum / n))
}

// NCCAt scores the patch against the frame window centered at (cx, cy)
// using normalized cross correlation.  The second return value is false
// when the window crosses the frame boundary or either side has zero
// variance, in which case no score exists.
func NCCAt(f *Frame, cx, cy int, p Patch) (float32, bool) {
	if p.Std == 0 || len(p.Pix) == 0 {
		return 0, false
	}

	half := p.Size / 2

	if cx-half < 0 || cy-half < 0 || cx+half >= f.Width() || cy+half >= f.Height() {
		return 0, false
	}

	gray := f.Gray()
	w := f.Width()
	n := float64(p.Size * p.Size)

	// window mean
	var sum float64

	for dy := -half; dy <= half; dy++ {
		row := (cy + dy) * w

		for dx := -half; dx <= half; dx++ {
			sum += float64(gray[row+cx+dx])
		}
	}

	winMean := sum / n

	// correlation and window variance in one pass
	var corr, winVar float64

	for dy := -half; dy <= half; dy++ {
		row := (cy + dy) * w

		for dx := -half; dx <= half; dx++ {
			wv := float64(gray[row+cx+dx]) - winMean
			pv := float64(p.Pix[(dy+half)*p.Size+(dx+half)]) - float64(p.Mean)
			corr += wv * pv
			winVar += wv * wv
		}
	}

	if winVar == 0 {
		return 0, false
	}

	winStd := math.Sqrt(winVar / n)
	score := corr / (n * winStd * float64(p.Std))

	return float32(score), true
}
