package reid

import (
	"math"
	"math/bits"

	"github.com/pointtrack/go-pointtrack/frame"
)

// DescriptorBits is the binary descriptor length.
const DescriptorBits = 256

// Descriptor is a 256-bit rotation-compensated binary descriptor.
type Descriptor [DescriptorBits / 8]byte

// samplePair is one intensity comparison of the descriptor pattern.
type samplePair struct {
	x1, y1, x2, y2 float64
}

// pattern is the fixed comparison pattern shared by all descriptors.  It is
// generated once from a deterministic generator so descriptors are stable
// across runs and processes.
var pattern [DescriptorBits]samplePair

func init() {
	// xorshift with a fixed seed; offsets stay inside a radius 13 disc so
	// any rotation keeps samples within the patch margin
	state := uint64(0x2545F4914F6CDD1D)

	next := func() float64 {
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		return float64(state%27) - 13
	}

	for i := 0; i < DescriptorBits; i++ {
		for {
			p := samplePair{x1: next(), y1: next(), x2: next(), y2: next()}
			if p.x1*p.x1+p.y1*p.y1 <= 169 && p.x2*p.x2+p.y2*p.y2 <= 169 {
				pattern[i] = p
				break
			}
		}
	}
}

// Describe computes the binary descriptor for a keypoint, rotating the
// sampling pattern by the keypoint orientation.  The keypoint must come
// from DetectKeypoints so the patch is guaranteed to be inside the frame.
func Describe(f *frame.Frame, kp Keypoint) Descriptor {
	sin, cos := math.Sincos(kp.Angle)

	var d Descriptor

	for i, p := range pattern {
		x1 := kp.X + int(math.Round(cos*p.x1-sin*p.y1))
		y1 := kp.Y + int(math.Round(sin*p.x1+cos*p.y1))
		x2 := kp.X + int(math.Round(cos*p.x2-sin*p.y2))
		y2 := kp.Y + int(math.Round(sin*p.x2+cos*p.y2))

		if f.GrayAt(x1, y1) < f.GrayAt(x2, y2) {
			d[i/8] |= 1 << (i % 8)
		}
	}

	return d
}

// DescribeAll computes descriptors for a keypoint slice.
func DescribeAll(f *frame.Frame, kps []Keypoint) []Descriptor {
	out := make([]Descriptor, len(kps))
	for i, kp := range kps {
		out[i] = Describe(f, kp)
	}
	return out
}

// Hamming returns the bit distance between two descriptors.
func Hamming(a, b Descriptor) int {
	dist := 0
	for i := range a {
		dist += bits.OnesCount8(a[i] ^ b[i])
	}
	return dist
}
