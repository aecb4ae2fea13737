package vision

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

var (
	faceColor     = color.RGBA{0, 0, 255, 0}
	leftEyeColor  = color.RGBA{0, 255, 0, 0}
	rightEyeColor = color.RGBA{255, 255, 0, 0}
	closedColor   = color.RGBA{255, 0, 0, 0}
	openColor     = color.RGBA{0, 255, 0, 0}
	unknownColor  = color.RGBA{0, 0, 255, 0}
	scoreColor    = color.RGBA{255, 255, 255, 0}
	borderColor   = color.RGBA{255, 0, 0, 0}
)

const (
	// quitKey stops the session from the keyboard.
	quitKey   = 'q'
	fontScale = 0.7
	lineWidth = 2
)

// Window implements domain.Renderer with an OpenCV HighGUI window.
// Render must be called from the goroutine that created the window.
type Window struct {
	window *gocv.Window
}

// NewWindow opens a display window.
func NewWindow(title string) *Window {
	return &Window{window: gocv.NewWindow(title)}
}

// Render draws the overlay onto a copy of the frame and shows it.
// Pressing q in the window returns domain.ErrQuitRequested.
func (w *Window) Render(req domain.RenderRequest) error {
	if req.Frame.Image == nil {
		return nil
	}
	rgb, err := gocv.ImageToMatRGB(req.Frame.Image)
	if err != nil {
		return fmt.Errorf("frame %d: %w", req.Frame.Seq, err)
	}
	defer rgb.Close()

	mat := gocv.NewMat()
	defer mat.Close()
	gocv.CvtColor(rgb, &mat, gocv.ColorRGBToBGR)

	origin := req.Frame.Image.Bounds().Min
	for _, face := range req.Classification.Faces {
		gocv.Rectangle(&mat, face.Sub(origin), faceColor, lineWidth)
	}
	for _, eye := range req.Classification.Eyes {
		c := leftEyeColor
		if eye.Side == domain.EyeRight {
			c = rightEyeColor
		}
		gocv.Rectangle(&mat, eye.Box.Sub(origin), c, lineWidth)
	}

	height := mat.Rows()
	label, labelColor := statusLabel(req.Classification.State)
	gocv.PutText(&mat, label, image.Pt(10, height-20),
		gocv.FontHersheySimplex, fontScale, labelColor, lineWidth)
	gocv.PutText(&mat, scoreLabel(req.Score), image.Pt(100, height-20),
		gocv.FontHersheySimplex, fontScale, scoreColor, lineWidth)

	if req.Triggered {
		gocv.Rectangle(&mat, image.Rect(0, 0, mat.Cols(), height), borderColor, max(req.Border, 1))
	}

	w.window.IMShow(mat)
	if key := w.window.WaitKey(1); key&0xFF == quitKey {
		return domain.ErrQuitRequested
	}
	return nil
}

// Close destroys the window.
func (w *Window) Close() error {
	return w.window.Close()
}

func statusLabel(state domain.FusedState) (string, color.RGBA) {
	switch state {
	case domain.FusedBothClosed:
		return "Closed", closedColor
	case domain.FusedNotBothClosed:
		return "Open", openColor
	default:
		return "Eyes not detected", unknownColor
	}
}

func scoreLabel(score int) string {
	return fmt.Sprintf("Score: %d", score)
}

var _ domain.Renderer = (*Window)(nil)
