package usecase

import (
	"image"

	"golang.org/x/image/draw"

	"github.com/eliteGoblin/drowsyguard/internal/domain"
)

// DefaultInputSize is the side of the square classifier input.
const DefaultInputSize = 24

// Normalize converts an eye crop to grayscale, scales it to size x size
// with bilinear interpolation and maps pixel values into [0,1].
func Normalize(src image.Image, size int) domain.NormalizedImage {
	gray := image.NewGray(image.Rect(0, 0, size, size))
	draw.BiLinear.Scale(gray, gray.Bounds(), src, src.Bounds(), draw.Src, nil)

	pix := make([]float32, size*size)
	for y := 0; y < size; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+size]
		for x, v := range row {
			pix[y*size+x] = float32(v) / 255
		}
	}
	return domain.NormalizedImage{Width: size, Height: size, Pix: pix}
}
