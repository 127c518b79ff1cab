package display

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/arucoloc/internal/vision"
)

// Overlay colours.
var (
	colorRed    = color.RGBA{R: 255, A: 255}
	colorGreen  = color.RGBA{G: 255, A: 255}
	colorBlue   = color.RGBA{B: 255, A: 255}
	colorYellow = color.RGBA{R: 255, G: 255, A: 255}
	colorWhite  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

const (
	borderThickness = 20
	textScale       = 3
	textThickness   = 4
	labelScale      = 2
	axisLength      = 0.1
)

// Sink receives decorated images.
type Sink interface {
	Present(img gocv.Mat) error
	Close() error
}

// Quitter is implemented by sinks that can request a quit.
type Quitter interface {
	QuitRequested() bool
}

// Renderer decorates frames in place and hands them to its sinks.
type Renderer struct {
	intrinsics vision.Intrinsics
	sinks      []Sink
}

// NewRenderer creates a Renderer. Intrinsics are used to project the origin axes.
func NewRenderer(intrinsics vision.Intrinsics, sinks ...Sink) *Renderer {
	return &Renderer{intrinsics: intrinsics, sinks: sinks}
}

// Show draws the overlay on frame.Image and presents it to every sink.
func (r *Renderer) Show(frame *vision.Frame, ov Overlay) error {
	if frame == nil || frame.Image == nil || frame.Image.Empty() {
		return nil
	}

	img := frame.Image
	if ov.Dim {
		gocv.AddWeighted(*img, 0.5, *img, 0, 0, img)
	}

	r.drawMarkers(img, frame.Markers)
	if ov.Origin != nil {
		r.drawAxes(img, ov)
	}
	if ov.Label != "" {
		gocv.PutText(img, ov.Label, image.Pt(50, 100), gocv.FontHersheyPlain, labelScale, colorBlue, textThickness)
	}
	drawBorder(img, levelColor(ov.Level))
	if ov.Prompt != "" {
		drawCentredText(img, ov.Prompt, promptColor(ov.Level))
	}

	for _, s := range r.sinks {
		if err := s.Present(*img); err != nil {
			return err
		}
	}
	return nil
}

// QuitRequested reports whether any sink asked to quit.
func (r *Renderer) QuitRequested() bool {
	for _, s := range r.sinks {
		if q, ok := s.(Quitter); ok && q.QuitRequested() {
			return true
		}
	}
	return false
}

// Close closes every sink.
func (r *Renderer) Close() error {
	var first error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (r *Renderer) drawMarkers(img *gocv.Mat, markers []vision.Marker) {
	if len(markers) == 0 {
		return
	}
	corners := make([][]gocv.Point2f, len(markers))
	ids := make([]int, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
		corners[i] = make([]gocv.Point2f, 4)
		for j, c := range m.Corners {
			corners[i][j] = gocv.Point2f{X: float32(c.X), Y: float32(c.Y)}
		}
	}
	gocv.ArucoDrawDetectedMarkers(*img, corners, ids, gocv.NewScalar(0, 255, 0, 0))
}

func (r *Renderer) drawAxes(img *gocv.Mat, ov Overlay) {
	if ov.Origin.T.Z <= 0 {
		return
	}
	pts := vision.ProjectAxes(*ov.Origin, axisLength, r.intrinsics)
	origin := toImagePoint(pts[0])
	gocv.Line(img, origin, toImagePoint(pts[1]), colorRed, 3)
	gocv.Line(img, origin, toImagePoint(pts[2]), colorGreen, 3)
	gocv.Line(img, origin, toImagePoint(pts[3]), colorBlue, 3)
}

func drawBorder(img *gocv.Mat, c color.RGBA) {
	rect := image.Rect(0, 0, img.Cols(), img.Rows())
	gocv.Rectangle(img, rect, c, borderThickness)
}

func drawCentredText(img *gocv.Mat, text string, c color.RGBA) {
	size := gocv.GetTextSize(text, gocv.FontHersheyPlain, textScale, textThickness)
	pt := centredOrigin(img.Cols(), img.Rows(), size)
	gocv.PutText(img, text, pt, gocv.FontHersheyPlain, textScale, c, textThickness)
}

// centredOrigin returns the text baseline origin that centres a box of
// the given size in a width x height image.
func centredOrigin(width, height int, size image.Point) image.Point {
	return image.Pt((width-size.X)/2, (height+size.Y)/2)
}

func toImagePoint(p vision.Point2) image.Point {
	return image.Pt(int(p.X+0.5), int(p.Y+0.5))
}

func levelColor(l Level) color.RGBA {
	switch l {
	case LevelInfo:
		return colorGreen
	case LevelWaiting:
		return colorYellow
	default:
		return colorRed
	}
}

func promptColor(l Level) color.RGBA {
	switch l {
	case LevelAlert:
		return colorRed
	case LevelInfo:
		return colorWhite
	default:
		return colorYellow
	}
}
