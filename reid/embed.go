package reid

import (
	"math"

	"github.com/x448/float16"

	"github.com/pointtrack/go-pointtrack/frame"
)

// embedding grid layout: 4x4 cells with 4 statistics each
const (
	embedCells = 4
	embedDim   = embedCells * embedCells * 4
)

var f16LookupTable [65536]float32

func init() {
	// precompute float16 lookup table for faster decoding of stored
	// embedding history
	for i := range f16LookupTable {
		f16 := float16.Frombits(uint16(i))
		f16LookupTable[i] = f16.Float32()
	}
}

// Embed computes an L2-normalized appearance embedding of the square
// region of the given odd size centered at (cx, cy): per-cell mean
// intensity, contrast and mean gradient components.  It returns false when
// the region crosses the frame boundary.
func Embed(f *frame.Frame, cx, cy, size int) ([]float32, bool) {
	half := size / 2

	if cx-half < 1 || cy-half < 1 || cx+half >= f.Width()-1 || cy+half >= f.Height()-1 {
		return nil, false
	}

	cell := size / embedCells
	if cell < 1 {
		return nil, false
	}

	out := make([]float32, 0, embedDim)

	for cyi := 0; cyi < embedCells; cyi++ {
		for cxi := 0; cxi < embedCells; cxi++ {
			x0 := cx - half + cxi*cell
			y0 := cy - half + cyi*cell

			var sum, sumSq, gxSum, gySum float64
			n := 0

			for y := y0; y < y0+cell; y++ {
				for x := x0; x < x0+cell; x++ {
					v := float64(f.GrayAt(x, y))
					sum += v
					sumSq += v * v
					gxSum += float64(int(f.GrayAt(x+1, y)) - int(f.GrayAt(x-1, y)))
					gySum += float64(int(f.GrayAt(x, y+1)) - int(f.GrayAt(x, y-1)))
					n++
				}
			}

			mean := sum / float64(n)
			variance := sumSq/float64(n) - mean*mean
			if variance < 0 {
				variance = 0
			}

			out = append(out,
				float32(mean/255),
				float32(math.Sqrt(variance)/128),
				float32(gxSum/float64(n)/255),
				float32(gySum/float64(n)/255),
			)
		}
	}

	return NormalizeVec(out), true
}

// NormalizeVec normalizes the input vector to unit length and returns a
// new slice.  A zero magnitude input is returned unchanged.
func NormalizeVec(v []float32) []float32 {
	norm := float32(0.0)

	for _, x := range v {
		norm += x * x
	}

	if norm == 0 {
		return v
	}

	norm = float32(math.Sqrt(float64(norm)))

	out := make([]float32, len(v))

	for i, x := range v {
		out[i] = x / norm
	}

	return out
}

// CosineSimilarity returns the dot product of two L2-normalized vectors.
func CosineSimilarity(a, b []float32) float32 {
	var dot float32

	for i := range a {
		dot += a[i] * b[i]
	}

	return dot
}

// EmbeddingHistory keeps an EMA-smoothed embedding and a bounded queue of
// past embeddings.  Queue entries are stored as float16 bits, halving the
// per-tracker memory footprint.
type EmbeddingHistory struct {
	// smooth is the EMA smoothed embedding, always L2 normalized
	smooth []float32
	// queue holds past embeddings in float16 bits, oldest first
	queue [][]uint16
	// maxSize bounds the queue
	maxSize int
	// alpha is the EMA smoothing factor
	alpha float32
}

// NewEmbeddingHistory creates a history with the given EMA factor and
// queue bound.
func NewEmbeddingHistory(alpha float32, maxSize int) *EmbeddingHistory {
	return &EmbeddingHistory{
		maxSize: maxSize,
		alpha:   alpha,
	}
}

// Update folds a fresh normalized embedding into the smoothed state and
// appends it to the bounded queue.
func (h *EmbeddingHistory) Update(feat []float32) {
	if len(feat) == 0 {
		return
	}

	normFeat := NormalizeVec(feat)

	if h.smooth == nil {
		h.smooth = make([]float32, len(normFeat))
		copy(h.smooth, normFeat)
	} else {
		for i := range normFeat {
			h.smooth[i] = h.alpha*h.smooth[i] + (1-h.alpha)*normFeat[i]
		}
		h.smooth = NormalizeVec(h.smooth)
	}

	packed := make([]uint16, len(normFeat))
	for i, v := range normFeat {
		packed[i] = float16.Fromfloat32(v).Bits()
	}

	h.queue = append(h.queue, packed)

	if len(h.queue) > h.maxSize {
		h.queue = h.queue[1:]
	}
}

// Smoothed returns the EMA smoothed embedding, or nil before any update.
func (h *EmbeddingHistory) Smoothed() []float32 {
	return h.smooth
}

// BestSimilarity compares a fresh embedding against every stored past
// embedding and returns the highest cosine similarity, or zero when the
// history is empty.
func (h *EmbeddingHistory) BestSimilarity(feat []float32) float32 {
	if len(h.queue) == 0 {
		return 0
	}

	normFeat := NormalizeVec(feat)
	best := float32(-1)

	decoded := make([]float32, len(normFeat))

	for _, packed := range h.queue {
		if len(packed) != len(normFeat) {
			continue
		}

		for i, b := range packed {
			decoded[i] = f16LookupTable[b]
		}

		if s := CosineSimilarity(decoded, normFeat); s > best {
			best = s
		}
	}

	if best < 0 {
		return 0
	}

	return best
}

// Len returns the number of stored past embeddings.
func (h *EmbeddingHistory) Len() int {
	return len(h.queue)
}
