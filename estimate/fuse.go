package estimate

// FuseConfig holds the candidate fusion parameters.
type FuseConfig struct {
	// TrustWeights is the fixed per-source weight table.  Missing sources
	// weigh zero and are effectively ignored.
	TrustWeights map[Source]float32
	// GateDistance excludes candidates farther than this from the first
	// weighted mean
	GateDistance float32
	// AgreementDistance normalizes the spatial agreement term
	AgreementDistance float32
}

// DefaultTrustWeights returns the per-source trust table.
func DefaultTrustWeights() map[Source]float32 {
	return map[Source]float32{
		SourceFlow:     1.0,
		SourceDetector: 0.95,
		SourceTemplate: 0.9,
		SourceOrb:      0.85,
		SourceAnchor:   0.8,
	}
}

// Fused is the consensus measurement produced from this frame's candidates.
type Fused struct {
	// X, Y is the consensus position
	X float32
	Y float32
	// Conf blends filtered-set confidence with spatial agreement, in [0,1]
	Conf float32
	// Used counts candidates that survived distance gating
	Used int
}

// Fuser combines whichever candidates exist this frame into a single
// gated, weighted consensus.  No estimator is reliable under all
// conditions; the gate keeps one outlier from dragging the consensus and
// the agreement term lowers confidence when the surviving sources disagree.
type Fuser struct {
	cfg FuseConfig
}

// NewFuser creates a fuser with the given parameters.
func NewFuser(cfg FuseConfig) *Fuser {
	return &Fuser{cfg: cfg}
}

// Fuse returns the consensus over the candidates, or false when the slice
// is empty or all candidates carry zero weight.
func (fu *Fuser) Fuse(cands []Candidate) (Fused, bool) {
	if len(cands) == 0 {
		return Fused{}, false
	}

	mx, my, ok := fu.weightedMean(cands)
	if !ok {
		return Fused{}, false
	}

	// distance gate and second pass; a source missing from the trust
	// table never steers the mean, so it must not prop up the averaged
	// confidence either
	var kept []Candidate
	for _, c := range cands {
		if fu.cfg.TrustWeights[c.Source] == 0 {
			continue
		}
		if hypot32(c.X-mx, c.Y-my) <= fu.cfg.GateDistance {
			kept = append(kept, c)
		}
	}

	if len(kept) == 0 {
		// total disagreement: fall back to the most trusted candidate so
		// tracking degrades instead of dropping out, with confidence
		// carrying the full disagreement penalty
		best := fu.mostTrusted(cands)
		return Fused{
			X:    best.X,
			Y:    best.Y,
			Conf: clamp32(best.Conf*fu.agreement(cands, mx, my), 0, 1),
			Used: 1,
		}, true
	}

	fx, fy, _ := fu.weightedMean(kept)

	var confSum float32
	for _, c := range kept {
		confSum += c.Conf
	}
	avgConf := confSum / float32(len(kept))

	return Fused{
		X:    fx,
		Y:    fy,
		Conf: clamp32(avgConf*fu.agreement(kept, fx, fy), 0, 1),
		Used: len(kept),
	}, true
}

// agreement is one minus the normalized average distance of the candidates
// from the consensus point, clamped to [0,1].
func (fu *Fuser) agreement(cands []Candidate, mx, my float32) float32 {
	var distSum float32
	for _, c := range cands {
		distSum += hypot32(c.X-mx, c.Y-my)
	}
	avgDist := distSum / float32(len(cands))
	return 1 - clamp32(avgDist/fu.cfg.AgreementDistance, 0, 1)
}

// weightedMean computes the trust and confidence weighted mean position.
func (fu *Fuser) weightedMean(cands []Candidate) (float32, float32, bool) {
	var wx, wy, wsum float32

	for _, c := range cands {
		w := c.Conf * fu.cfg.TrustWeights[c.Source]
		wx += c.X * w
		wy += c.Y * w
		wsum += w
	}

	if wsum == 0 {
		return 0, 0, false
	}

	return wx / wsum, wy / wsum, true
}

// mostTrusted returns the candidate with the highest trust weighted
// confidence.
func (fu *Fuser) mostTrusted(cands []Candidate) Candidate {
	best := cands[0]
	bestW := best.Conf * fu.cfg.TrustWeights[best.Source]

	for _, c := range cands[1:] {
		w := c.Conf * fu.cfg.TrustWeights[c.Source]
		if w > bestW {
			best = c
			bestW = w
		}
	}

	return best
}
