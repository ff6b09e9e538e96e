package reid

// Match pairs a stored descriptor with a detected one.
type Match struct {
	// StoredIdx indexes the tracker's stored descriptor set
	StoredIdx int
	// FoundIdx indexes the freshly detected set
	FoundIdx int
	// Distance is the Hamming distance of the pair
	Distance int
}

// MatchDescriptors matches stored descriptors against detected ones with a
// nearest / second-nearest ratio test.  A stored descriptor is matched only
// when its best distance is below maxDistance and clearly better than the
// runner up, which rejects ambiguous correspondences on repetitive texture.
func MatchDescriptors(stored, found []Descriptor, ratio float64, maxDistance int) []Match {
	if len(found) < 2 {
		return nil
	}

	var out []Match

	for si := range stored {
		best := -1
		bestDist, secondDist := DescriptorBits+1, DescriptorBits+1

		for fi := range found {
			d := Hamming(stored[si], found[fi])
			if d < bestDist {
				secondDist = bestDist
				best = fi
				bestDist = d
			} else if d < secondDist {
				secondDist = d
			}
		}

		if best < 0 || bestDist > maxDistance {
			continue
		}

		if float64(bestDist) >= ratio*float64(secondDist) {
			continue
		}

		out = append(out, Match{StoredIdx: si, FoundIdx: best, Distance: bestDist})
	}

	return out
}
