package pointtrack

import (
	"github.com/pkg/errors"

	"github.com/pointtrack/go-pointtrack/estimate"
	"github.com/pointtrack/go-pointtrack/reid"
	"github.com/pointtrack/go-pointtrack/track"
)

// Config aggregates all engine parameters.  Every empirically tuned
// threshold is exposed here rather than baked in; DefaultConfig returns
// a set tuned for 30fps video at VGA-like resolutions
type Config struct {
	// Global parameterizes camera motion estimation
	Global estimate.GlobalConfig
	// Predict parameterizes search center projection
	Predict estimate.PredictConfig
	// Flow parameterizes the optical flow matcher
	Flow estimate.FlowConfig
	// Template parameterizes template matching and template updates
	Template estimate.TemplateConfig
	// Fuse parameterizes candidate fusion
	Fuse estimate.FuseConfig
	// Reid parameterizes the re-identification search
	Reid reid.Config
	// Lifecycle parameterizes the tracker state machine
	Lifecycle track.Config

	// KalmanPositionWeight and KalmanVelocityWeight are the filter
	// process noise weights
	KalmanPositionWeight float32
	KalmanVelocityWeight float32

	// TemplateSearchRadius bounds the template verification search
	// around the predicted center while tracking
	TemplateSearchRadius int

	// DriftOverrideScore and DriftWeakFlow express the precedence
	// between the periodic template drift check and flow: the template
	// candidate displaces the flow candidate only when the template
	// score is at least DriftOverrideScore or the flow confidence is
	// below DriftWeakFlow; otherwise both feed fusion
	DriftOverrideScore float32
	DriftWeakFlow      float32

	// DetectionClaimDistance is the maximum pixel distance at which a
	// tracker may claim a detection
	DetectionClaimDistance float64

	// HistogramBlendAlpha folds fresh color signatures into the stored
	// histogram
	HistogramBlendAlpha float32

	// EmbedAlpha, EmbedHistory and EmbedSize parameterize the embedding
	// history kept per tracker
	EmbedAlpha   float32
	EmbedHistory int
	EmbedSize    int

	// TrailLength bounds the per-tracker position history
	TrailLength int
}

// DefaultConfig returns the tuned default parameter set
func DefaultConfig() Config {
	return Config{
		Global: estimate.GlobalConfig{
			GridCols:     5,
			GridRows:     3,
			PatchSize:    17,
			SearchRadius: 14,
			CoarseStep:   2,
			MinScore:     0.6,
		},
		Predict: estimate.PredictConfig{
			VelocityGain:     0.05,
			VelocityScaleMax: 1.5,
		},
		Flow: estimate.FlowConfig{
			PatchSize:           17,
			SampleStride:        2,
			BaseRadius:          24,
			MaxRadius:           64,
			SpeedRadiusGain:     2,
			GlobalRadiusGain:    2,
			OcclusionRadiusGain: 1,
			CoarseStep:          3,
			TopK:                5,
			GradientWeight:      0.25,
			FwdBwdThreshold:     6,
			BoundaryMargin:      6,
			MinConfidence:       0.25,
		},
		Template: estimate.TemplateConfig{
			PatchSize:        21,
			CoarseStep:       3,
			MinScore:         0.55,
			UpdateScore:      0.8,
			UpdateIntervalMs: 600,
			BlendAlpha:       0.15,
		},
		Fuse: estimate.FuseConfig{
			TrustWeights:      estimate.DefaultTrustWeights(),
			GateDistance:      48,
			AgreementDistance: 32,
		},
		Reid: reid.Config{
			MaxKeypoints:     200,
			FastThreshold:    20,
			RatioTest:        0.75,
			MaxHamming:       64,
			RansacIters:      120,
			RansacInlierDist: 3,
			RansacMinInliers: 8,
			RansacSeed:       1,
			HistRadius:       12,
			MinHistSim:       0.5,
			TemplateMinScore: 0.8,
			GridMinScore:     0.6,
			ROIBase:          80,
			ROIGrowth:        4,
			EnvelopeBase:     80,
			EnvelopeGrowth:   4,
			EdgeRingInterval: 3,
			GridScanInterval: 5,
			GridScanAfter:    40,
			GridScanScale:    4,
		},
		Lifecycle: track.Config{
			OcclusionConfidence: 0.35,
			OcclusionTimeout:    18,
			LostTimeout:         240,
			ConfirmRadius:       12,
			SmoothMin:           0.25,
			SmoothMax:           0.85,
			SmoothSpeedNorm:     40,
		},
		KalmanPositionWeight:   1e-2,
		KalmanVelocityWeight:   1e-3,
		TemplateSearchRadius:   24,
		DriftOverrideScore:     0.85,
		DriftWeakFlow:          0.4,
		DetectionClaimDistance: 60,
		HistogramBlendAlpha:    0.1,
		EmbedAlpha:             0.9,
		EmbedHistory:           5,
		EmbedSize:              21,
		TrailLength:            32,
	}
}

// Validate reports malformed configuration.  Estimator failures at run
// time are modeled as absence; configuration mistakes are the genuine
// errors
func (c Config) Validate() error {

	for name, size := range map[string]int{
		"global patch":   c.Global.PatchSize,
		"flow patch":     c.Flow.PatchSize,
		"template patch": c.Template.PatchSize,
		"embed patch":    c.EmbedSize,
	} {
		if size < 3 || size%2 == 0 {
			return errors.Errorf("%s size %d must be odd and at least 3",
				name, size)
		}
	}

	if c.Global.GridCols < 1 || c.Global.GridRows < 1 {
		return errors.Errorf("motion grid %dx%d must be at least 1x1",
			c.Global.GridCols, c.Global.GridRows)
	}

	if c.Flow.BaseRadius < 1 || c.Flow.MaxRadius < c.Flow.BaseRadius {
		return errors.Errorf("flow radius [%d..%d] is not a valid range",
			c.Flow.BaseRadius, c.Flow.MaxRadius)
	}

	if len(c.Fuse.TrustWeights) == 0 {
		return errors.New("fusion trust weight table is empty")
	}

	if c.Fuse.GateDistance <= 0 || c.Fuse.AgreementDistance <= 0 {
		return errors.New("fusion distances must be positive")
	}

	if c.Lifecycle.OcclusionConfidence <= 0 || c.Lifecycle.OcclusionConfidence >= 1 {
		return errors.Errorf("occlusion confidence %f out of (0,1)",
			c.Lifecycle.OcclusionConfidence)
	}

	if c.Lifecycle.OcclusionTimeout < 1 || c.Lifecycle.LostTimeout < 1 {
		return errors.New("lifecycle timeouts must be at least one frame")
	}

	if c.Lifecycle.SmoothMin > c.Lifecycle.SmoothMax {
		return errors.Errorf("smoothing bounds [%f..%f] are inverted",
			c.Lifecycle.SmoothMin, c.Lifecycle.SmoothMax)
	}

	if c.Lifecycle.SmoothSpeedNorm <= 0 {
		return errors.New("smoothing speed norm must be positive")
	}

	if c.KalmanPositionWeight <= 0 || c.KalmanVelocityWeight <= 0 {
		return errors.New("kalman noise weights must be positive")
	}

	if c.Reid.MaxKeypoints < c.Reid.RansacMinInliers {
		return errors.Errorf("keypoint cap %d below the inlier minimum %d",
			c.Reid.MaxKeypoints, c.Reid.RansacMinInliers)
	}

	if c.DetectionClaimDistance <= 0 {
		return errors.New("detection claim distance must be positive")
	}

	if c.TrailLength < 1 {
		return errors.New("trail length must be at least 1")
	}

	alphas := map[string]float32{
		"template blend":  c.Template.BlendAlpha,
		"histogram blend": c.HistogramBlendAlpha,
		"embed smoothing": c.EmbedAlpha,
	}

	for name, a := range alphas {
		if a <= 0 || a > 1 {
			return errors.Errorf("%s alpha %f out of (0,1]", name, a)
		}
	}

	return nil
}
