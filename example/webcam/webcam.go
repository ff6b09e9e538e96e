package main

import (
	"flag"
	"image"
	"image/draw"
	"log"
	"log/slog"
	"os"
	"time"

	"gocv.io/x/gocv"

	pointtrack "github.com/pointtrack/go-pointtrack"
	"github.com/pointtrack/go-pointtrack/detect"
	"github.com/pointtrack/go-pointtrack/detect/dnn"
	"github.com/pointtrack/go-pointtrack/render"
)

// toRGBA converts a BGR video frame into the image format the tracking
// engine consumes
func toRGBA(mat gocv.Mat) (*image.RGBA, error) {
	img, err := mat.ToImage()

	if err != nil {
		return nil, err
	}

	if rgba, ok := img.(*image.RGBA); ok {
		return rgba, nil
	}

	b := img.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, img, b.Min, draw.Src)

	return rgba, nil
}

func main() {
	// disable logging timestamps
	log.SetFlags(0)

	// read in cli flags
	source := flag.String("s", "0", "Video source, device ID or file")
	modelFile := flag.String("m", "", "ONNX detector model file, optional")
	namesFile := flag.String("l", "", "Detector class names file")
	detectEvery := flag.Int("d", 5, "Run the detector every n frames")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr,
		&slog.HandlerOptions{Level: slog.LevelInfo}))

	engine, err := pointtrack.NewEngine(pointtrack.DefaultConfig(), logger)

	if err != nil {
		log.Fatal("Error creating engine: ", err)
	}

	session := pointtrack.NewSession(engine, 8)
	defer session.Close()

	// optional detector pool
	var detPool *dnn.Pool

	if *modelFile != "" {
		detPool, err = dnn.NewPool(2, dnn.Config{
			Format:         dnn.ModelFormatONNX,
			ModelPath:      *modelFile,
			ClassNamesPath: *namesFile,
			InputSize:      640,
			ScoreThreshold: 0.5,
			NMSThreshold:   0.45,
		})

		if err != nil {
			log.Fatal("Error creating detector pool: ", err)
		}

		defer detPool.Close()
	}

	vid, err := gocv.OpenVideoCapture(*source)

	if err != nil {
		log.Fatal("Error opening video source: ", err)
	}

	defer vid.Close()

	window := gocv.NewWindow("pointtrack")
	defer window.Close()

	mat := gocv.NewMat()
	defer mat.Close()

	font := render.DefaultFont()
	markerStyle := render.DefaultMarkerStyle()
	trailStyle := render.DefaultTrailStyle()

	var last *pointtrack.FrameResult

	frameNum := 0

	for {
		if ok := vid.Read(&mat); !ok || mat.Empty() {
			break
		}

		frameNum++

		rgba, err := toRGBA(mat)

		if err != nil {
			log.Fatal("Error converting frame: ", err)
		}

		// detection feed every n frames
		var dets []detect.Detection

		if detPool != nil && frameNum%*detectEvery == 0 {
			d := detPool.Get()
			dets = d.Detect(mat)
			detPool.Return(d)
		}

		session.Submit(rgba, time.Now(), dets)

		// drain any finished results, keeping the newest
	drain:
		for {
			select {
			case res := <-session.Results():
				last = res
			default:
				break drain
			}
		}

		if last != nil {
			render.Trails(&mat, last.Trackers, trailStyle)
			render.Trackers(&mat, last.Trackers, font, markerStyle)
			render.Strokes(&mat, last.Strokes, render.Yellow, 1)
		}

		window.IMShow(mat)

		switch window.WaitKey(1) {
		case 27: // ESC
			return

		case 'c':
			// register a tracker on whatever is at the frame center
			id, err := engine.CreateTracker("",
				float64(mat.Cols())/2, float64(mat.Rows())/2)

			if err != nil {
				log.Println("Error creating tracker: ", err)
				continue
			}

			log.Println("created tracker ", id)

		case 'r':
			session.Reset()
			last = nil
		}
	}
}
