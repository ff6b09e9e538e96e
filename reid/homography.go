package reid

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Point2f is a planar point used for homography fitting.
type Point2f struct {
	X float64
	Y float64
}

// Homography is a 3x3 planar projective transform, row major.
type Homography [9]float64

// Project maps a point through the homography.  It returns false when the
// point projects to infinity.
func (h Homography) Project(x, y float64) (float64, float64, bool) {
	w := h[6]*x + h[7]*y + h[8]

	if math.Abs(w) < 1e-10 {
		return 0, 0, false
	}

	return (h[0]*x + h[1]*y + h[2]) / w, (h[3]*x + h[4]*y + h[5]) / w, true
}

// EstimateHomography fits a homography from src to dst with RANSAC.  It
// returns the refined model, the inlier count, and false when fewer than
// minInliers correspondences support the best model.  Failure is the normal
// outcome on bad matches and simply yields no candidate upstream.
func EstimateHomography(src, dst []Point2f, iters int, inlierDist float64, minInliers int, rng *rand.Rand) (Homography, int, bool) {
	n := len(src)

	if n < 4 || len(dst) != n {
		return Homography{}, 0, false
	}

	var bestH Homography
	bestInliers := 0

	for it := 0; it < iters; it++ {
		idx := sampleFour(n, rng)

		s := []Point2f{src[idx[0]], src[idx[1]], src[idx[2]], src[idx[3]]}
		d := []Point2f{dst[idx[0]], dst[idx[1]], dst[idx[2]], dst[idx[3]]}

		if degenerate(s) || degenerate(d) {
			continue
		}

		h, ok := solveDLT(s, d)
		if !ok {
			continue
		}

		inliers := countInliers(h, src, dst, inlierDist)
		if inliers > bestInliers {
			bestInliers = inliers
			bestH = h
		}
	}

	if bestInliers < minInliers {
		return Homography{}, bestInliers, false
	}

	// refit on the full inlier set
	var s, d []Point2f
	for i := range src {
		if projectError(bestH, src[i], dst[i]) <= inlierDist {
			s = append(s, src[i])
			d = append(d, dst[i])
		}
	}

	if h, ok := solveDLT(s, d); ok {
		if in := countInliers(h, src, dst, inlierDist); in >= bestInliers {
			bestH = h
			bestInliers = in
		}
	}

	return bestH, bestInliers, true
}

// sampleFour draws four distinct indices.
func sampleFour(n int, rng *rand.Rand) [4]int {
	var idx [4]int

	for i := 0; i < 4; {
		v := rng.Intn(n)
		dup := false
		for j := 0; j < i; j++ {
			if idx[j] == v {
				dup = true
				break
			}
		}
		if !dup {
			idx[i] = v
			i++
		}
	}

	return idx
}

// degenerate reports whether any three of the four points are nearly
// collinear, which makes the DLT system rank deficient.
func degenerate(p []Point2f) bool {
	for i := 0; i < 4; i++ {
		for j := i + 1; j < 4; j++ {
			for k := j + 1; k < 4; k++ {
				ax := p[j].X - p[i].X
				ay := p[j].Y - p[i].Y
				bx := p[k].X - p[i].X
				by := p[k].Y - p[i].Y
				if math.Abs(ax*by-ay*bx) < 1e-3 {
					return true
				}
			}
		}
	}
	return false
}

// solveDLT solves the direct linear transform with Hartley normalization,
// taking the null space from a full SVD.
func solveDLT(src, dst []Point2f) (Homography, bool) {
	n := len(src)
	if n < 4 {
		return Homography{}, false
	}

	ns, ts := normalize(src)
	nd, td := normalize(dst)

	a := mat.NewDense(2*n, 9, nil)

	for i := 0; i < n; i++ {
		x, y := ns[i].X, ns[i].Y
		u, v := nd[i].X, nd[i].Y

		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFullV); !ok {
		return Homography{}, false
	}

	var v mat.Dense
	svd.VTo(&v)

	// null space is the right singular vector of the smallest singular value
	var hn Homography
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	// denormalize: H = Td^-1 * Hn * Ts
	h := compose(invertSim(td), compose(hn, ts))

	if math.Abs(h[8]) > 1e-10 {
		for i := range h {
			h[i] /= h[8]
		}
	}

	return h, true
}

// normalize translates points to zero mean and scales average distance to
// sqrt(2), returning the applied similarity transform.
func normalize(pts []Point2f) ([]Point2f, Homography) {
	var mx, my float64
	for _, p := range pts {
		mx += p.X
		my += p.Y
	}
	mx /= float64(len(pts))
	my /= float64(len(pts))

	var avgDist float64
	for _, p := range pts {
		avgDist += math.Hypot(p.X-mx, p.Y-my)
	}
	avgDist /= float64(len(pts))

	scale := 1.0
	if avgDist > 1e-10 {
		scale = math.Sqrt2 / avgDist
	}

	out := make([]Point2f, len(pts))
	for i, p := range pts {
		out[i] = Point2f{X: (p.X - mx) * scale, Y: (p.Y - my) * scale}
	}

	t := Homography{scale, 0, -mx * scale, 0, scale, -my * scale, 0, 0, 1}

	return out, t
}

// invertSim inverts a similarity transform of the form produced by
// normalize.
func invertSim(t Homography) Homography {
	s := t[0]
	return Homography{1 / s, 0, -t[2] / s, 0, 1 / s, -t[5] / s, 0, 0, 1}
}

// compose returns the matrix product a*b.
func compose(a, b Homography) Homography {
	var out Homography
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += a[r*3+k] * b[k*3+c]
			}
			out[r*3+c] = sum
		}
	}
	return out
}

// projectError is the reprojection distance of one correspondence.
func projectError(h Homography, s, d Point2f) float64 {
	x, y, ok := h.Project(s.X, s.Y)
	if !ok {
		return math.Inf(1)
	}
	return math.Hypot(x-d.X, y-d.Y)
}

// countInliers counts correspondences within the inlier distance.
func countInliers(h Homography, src, dst []Point2f, dist float64) int {
	count := 0
	for i := range src {
		if projectError(h, src[i], dst[i]) <= dist {
			count++
		}
	}
	return count
}
