package vision

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/image/draw"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// Cascade implements domain.RegionDetector with a Haar cascade.
type Cascade struct {
	name       string
	classifier gocv.CascadeClassifier
}

// LoadCascade reads a cascade XML file.
func LoadCascade(path string) (*Cascade, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("%w: cascade %s", domain.ErrAssetLoad, path)
	}
	return &Cascade{name: path, classifier: classifier}, nil
}

// Detect returns candidate regions in the coordinate space of img. Each
// candidate carries a crop of img when img supports sub-images.
func (c *Cascade) Detect(img image.Image, params domain.DetectParams) ([]domain.RegionCandidate, error) {
	if img == nil {
		return nil, nil
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, nil
	}

	gray := grayscale(img)
	mat, err := gocv.NewMatFromBytes(gray.Rect.Dy(), gray.Rect.Dx(), gocv.MatTypeCV8U, gray.Pix)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.name, err)
	}
	defer mat.Close()

	minSize := image.Pt(params.MinSize, params.MinSize)
	rects := c.classifier.DetectMultiScaleWithParams(mat, params.ScaleFactor, params.MinNeighbors, 0, minSize, image.Point{})

	return candidates(img, rects), nil
}

// Close frees the classifier.
func (c *Cascade) Close() error {
	return c.classifier.Close()
}

// grayscale copies img into a zero-origin Gray image with Stride == width.
func grayscale(img image.Image) *image.Gray {
	b := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(gray, gray.Bounds(), img, b.Min, draw.Src)
	return gray
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// candidates shifts detector rectangles, which are relative to the
// zero-origin copy, back into img's coordinate space.
func candidates(img image.Image, rects []image.Rectangle) []domain.RegionCandidate {
	if len(rects) == 0 {
		return nil
	}
	origin := img.Bounds().Min
	sub, canCrop := img.(subImager)

	out := make([]domain.RegionCandidate, 0, len(rects))
	for _, r := range rects {
		box := r.Add(origin).Intersect(img.Bounds())
		if box.Empty() {
			continue
		}
		cand := domain.RegionCandidate{Box: box}
		if canCrop {
			cand.Image = sub.SubImage(box)
		}
		out = append(out, cand)
	}
	return out
}

var _ domain.RegionDetector = (*Cascade)(nil)
