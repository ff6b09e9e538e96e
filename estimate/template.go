package estimate

import (
	"math"

	"github.com/pointtrack/go-pointtrack/frame"
)

// TemplateConfig holds the normalized correlation search parameters.
type TemplateConfig struct {
	// PatchSize is the odd template side length
	PatchSize int
	// CoarseStep is the first pass stride
	CoarseStep int
	// MinScore rejects matches below this correlation
	MinScore float32
	// UpdateScore gates template blending on match confidence
	UpdateScore float32
	// UpdateIntervalMs is the minimum time between template updates
	UpdateIntervalMs int64
	// BlendAlpha is the exponential blend factor toward fresh captures
	BlendAlpha float32
}

// TemplateMatcher searches the current frame for the tracker's maintained
// appearance template using normalized cross correlation.
type TemplateMatcher struct {
	cfg TemplateConfig
}

// NewTemplateMatcher creates a matcher with the given parameters.
func NewTemplateMatcher(cfg TemplateConfig) *TemplateMatcher {
	return &TemplateMatcher{cfg: cfg}
}

// Config returns the matcher parameters.
func (m *TemplateMatcher) Config() TemplateConfig {
	return m.cfg
}

// Match searches within radius of the center for the template.  It returns
// no candidate when the template is degenerate or the best score falls
// below the minimum.
func (m *TemplateMatcher) Match(cur *frame.Frame, tpl frame.Patch, centerX, centerY float32, radius int) (Candidate, bool) {
	if cur == nil || tpl.Std == 0 || len(tpl.Pix) == 0 {
		return Candidate{}, false
	}

	cx := int(math.Round(float64(centerX)))
	cy := int(math.Round(float64(centerY)))

	step := m.cfg.CoarseStep
	if step < 1 {
		step = 1
	}

	bestX, bestY := 0, 0
	bestScore := float32(-2)
	found := false

	for dy := -radius; dy <= radius; dy += step {
		for dx := -radius; dx <= radius; dx += step {
			score, ok := frame.NCCAt(cur, cx+dx, cy+dy, tpl)
			if !ok {
				continue
			}
			if score > bestScore {
				bestScore = score
				bestX, bestY = cx+dx, cy+dy
				found = true
			}
		}
	}

	if !found {
		return Candidate{}, false
	}

	// local unit step refinement
	for dy := -step + 1; dy <= step-1; dy++ {
		for dx := -step + 1; dx <= step-1; dx++ {
			if dx == 0 && dy == 0 {
				continue
			}
			score, ok := frame.NCCAt(cur, bestX+dx, bestY+dy, tpl)
			if ok && score > bestScore {
				bestScore = score
				bestX, bestY = bestX+dx, bestY+dy
			}
		}
	}

	if bestScore < m.cfg.MinScore {
		return Candidate{}, false
	}

	return Candidate{
		X:      float32(bestX),
		Y:      float32(bestY),
		Conf:   clamp32(bestScore, 0, 1),
		Source: SourceTemplate,
	}, true
}

// ShouldUpdate reports whether the template may be blended toward a fresh
// capture: the match must be confident and the minimum interval since the
// last update must have elapsed.  Both gates protect against slow drift
// onto background.
func (m *TemplateMatcher) ShouldUpdate(matchConf float32, msSinceUpdate int64) bool {
	return matchConf >= m.cfg.UpdateScore && msSinceUpdate >= m.cfg.UpdateIntervalMs
}
