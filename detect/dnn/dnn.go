// Package dnn runs an OpenCV DNN object detector and adapts its output
// to the detect.Detection feed.  It is an optional front end; the
// tracking engine itself never depends on OpenCV.
package dnn

import (
	"image"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/pointtrack/go-pointtrack/detect"
)

// ModelFormat selects how the model files are loaded
type ModelFormat string

const (
	// ModelFormatONNX loads a single .onnx file
	ModelFormatONNX ModelFormat = "onnx"
	// ModelFormatDarknet loads .weights plus .cfg files
	ModelFormatDarknet ModelFormat = "darknet"
)

// Config holds the detector model setup
type Config struct {
	// Format selects the loader used for ModelPath
	Format ModelFormat
	// ModelPath is the model weights file
	ModelPath string
	// ConfigPath is the network definition, used by the darknet format
	ConfigPath string
	// ClassNamesPath is a newline separated class name list
	ClassNamesPath string
	// InputSize is the square network input resolution
	InputSize int
	// ScoreThreshold drops detections below this confidence
	ScoreThreshold float32
	// NMSThreshold is the non-maximum suppression overlap threshold
	NMSThreshold float32
}

// Detector wraps a loaded DNN model
type Detector struct {
	net        gocv.Net
	classNames []string
	cfg        Config
}

// NewDetector loads the model and class names
func NewDetector(cfg Config) (*Detector, error) {

	var net gocv.Net

	switch cfg.Format {
	case ModelFormatONNX:
		net = gocv.ReadNetFromONNX(cfg.ModelPath)
	case ModelFormatDarknet:
		net = gocv.ReadNet(cfg.ModelPath, cfg.ConfigPath)
	default:
		return nil, errors.Errorf("unsupported model format %q", cfg.Format)
	}

	if net.Empty() {
		return nil, errors.Errorf("failed to load model from %s", cfg.ModelPath)
	}

	d := &Detector{
		net: net,
		cfg: cfg,
	}

	if cfg.ClassNamesPath != "" {
		buf, err := os.ReadFile(cfg.ClassNamesPath)

		if err != nil {
			net.Close()
			return nil, errors.Wrap(err, "failed to read class names")
		}

		for _, name := range strings.Split(string(buf), "\n") {
			d.classNames = append(d.classNames, strings.TrimSpace(name))
		}
	}

	return d, nil
}

// Close releases the network
func (d *Detector) Close() error {
	return d.net.Close()
}

// Detect runs one forward pass and returns detections with normalized
// boxes, already non-maximum suppressed
func (d *Detector) Detect(img gocv.Mat) []detect.Detection {

	size := d.cfg.InputSize

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(size, size),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")

	output := d.net.Forward("")
	defer output.Close()

	var (
		boxes  []image.Rectangle
		scores []float32
		dets   []detect.Detection
	)

	// each output row is [cx cy w h obj class scores...] in normalized
	// network coordinates
	for i := 0; i < output.Rows(); i++ {
		row := output.RowRange(i, i+1)
		data := row.Clone()
		row.Close()

		classScores := data.ColRange(5, data.Cols())
		_, maxVal, _, maxLoc := gocv.MinMaxLoc(classScores)
		classScores.Close()

		if maxVal < d.cfg.ScoreThreshold {
			data.Close()
			continue
		}

		cx := float64(data.GetFloatAt(0, 0))
		cy := float64(data.GetFloatAt(0, 1))
		w := float64(data.GetFloatAt(0, 2))
		h := float64(data.GetFloatAt(0, 3))
		data.Close()

		label := ""
		if maxLoc.X < len(d.classNames) {
			label = d.classNames[maxLoc.X]
		}

		dets = append(dets, detect.Detection{
			X:     cx - w/2,
			Y:     cy - h/2,
			W:     w,
			H:     h,
			Label: label,
			Conf:  float64(maxVal),
		})

		// NMS runs on a fixed pixel scale since boxes are normalized
		boxes = append(boxes, image.Rect(
			int((cx-w/2)*1000), int((cy-h/2)*1000),
			int((cx+w/2)*1000), int((cy+h/2)*1000)))
		scores = append(scores, maxVal)
	}

	if len(dets) == 0 {
		return nil
	}

	keep := gocv.NMSBoxes(boxes, scores,
		d.cfg.ScoreThreshold, d.cfg.NMSThreshold)

	out := make([]detect.Detection, 0, len(keep))

	for _, idx := range keep {
		out = append(out, dets[idx])
	}

	return out
}
