package detect

import "sort"

// Claimant is a tracker position bidding for a detection this frame
type Claimant struct {
	ID   string
	X, Y float64
}

// Claim partitions the frame's detection pool among claimants, greedily
// by distance.  Each detection is handed to at most one claimant and
// each claimant receives at most one detection, so two trackers can
// never share a detection within a frame.  Returns claimant id mapped
// to the index of its claimed detection
func Claim(dets []Detection, claimants []Claimant, frameW, frameH int,
	maxDist float64) map[string]int {

	type pair struct {
		claimant int
		det      int
		dist2    float64
	}

	var pairs []pair

	max2 := maxDist * maxDist

	for ci, c := range claimants {
		for di, d := range dets {
			x, y := d.Center(frameW, frameH)
			dx, dy := x-c.X, y-c.Y

			if d2 := dx*dx + dy*dy; d2 <= max2 {
				pairs = append(pairs, pair{claimant: ci, det: di, dist2: d2})
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].dist2 < pairs[j].dist2
	})

	claimed := make(map[string]int)
	usedClaimant := make(map[int]bool)
	usedDet := make(map[int]bool)

	for _, p := range pairs {
		if usedClaimant[p.claimant] || usedDet[p.det] {
			continue
		}

		usedClaimant[p.claimant] = true
		usedDet[p.det] = true
		claimed[claimants[p.claimant].ID] = p.det
	}

	return claimed
}
