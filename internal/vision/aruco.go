package vision

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/arucoloc/internal/capture"
)

// Config holds configuration options for marker detection.
type Config struct {
	// MarkerSize is the printed side length of every marker, in metres.
	MarkerSize float64

	// Intrinsics is the calibrated camera model.
	Intrinsics Intrinsics

	// Dictionary selects the predefined ArUco dictionary.
	Dictionary gocv.ArucoDictionaryCode
}

// DefaultConfig returns a Config for 4x4 markers with 100 ids and 5 cm sides.
func DefaultConfig() Config {
	return Config{
		MarkerSize: 0.05,
		Dictionary: gocv.ArucoDict4x4_100,
	}
}

// ArucoProvider reads frames from a camera and detects ArUco markers in them.
type ArucoProvider struct {
	config   Config
	camera   capture.Camera
	detector gocv.ArucoDetector
	gray     gocv.Mat
	mu       sync.Mutex
	closed   bool
}

// NewArucoProvider opens the camera and prepares the detector.
func NewArucoProvider(camera capture.Camera, config Config) (*ArucoProvider, error) {
	if config.MarkerSize <= 0 {
		return nil, fmt.Errorf("marker size must be positive, got %g", config.MarkerSize)
	}

	if err := camera.Open(); err != nil {
		return nil, err
	}

	dict := gocv.GetPredefinedDictionary(config.Dictionary)
	params := gocv.NewArucoDetectorParameters()

	return &ArucoProvider{
		config:   config,
		camera:   camera,
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		gray:     gocv.NewMat(),
	}, nil
}

// NextFrame grabs a frame, detects markers and estimates their poses.
// Markers whose pose cannot be recovered are dropped with a warning.
func (p *ArucoProvider) NextFrame(ctx context.Context) (*Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrStreamClosed
	}

	img, err := p.camera.ReadFrame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFrameUnavailable, err)
	}

	gocv.CvtColor(*img, &p.gray, gocv.ColorBGRToGray)
	corners, ids, _ := p.detector.DetectMarkers(p.gray)

	frame := &Frame{
		Image:     img,
		Timestamp: time.Now(),
		Markers:   make([]Marker, 0, len(ids)),
	}

	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}

		m := Marker{ID: id}
		for j, c := range corners[i] {
			m.Corners[j] = Point2{X: float64(c.X), Y: float64(c.Y)}
		}

		pose, err := EstimatePose(m.Corners, p.config.MarkerSize, p.config.Intrinsics)
		if err != nil {
			log.Printf("warning: marker %d pose: %v", id, err)
			continue
		}
		m.Pose = pose
		frame.Markers = append(frame.Markers, m)
	}

	return frame, nil
}

// Close releases the detector and the camera.
func (p *ArucoProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	p.gray.Close()
	p.detector.Close()
	return p.camera.Close()
}
