package kyc

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/opensource-finance/quantra/internal/domain"
)

// DecodeImage decodes a base64 PNG, JPEG or GIF image. A data-URL prefix
// ("data:image/png;base64,") is accepted. Failures wrap domain.ErrInvalidInput.
func DecodeImage(b64 string) (image.Image, error) {
	data := strings.TrimSpace(b64)
	if i := strings.Index(data, ","); strings.HasPrefix(data, "data:") && i >= 0 {
		data = data[i+1:]
	}
	if data == "" {
		return nil, fmt.Errorf("%w: empty image", domain.ErrInvalidInput)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(data)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid base64 image: %v", domain.ErrInvalidInput, err)
		}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid image data: %v", domain.ErrInvalidInput, err)
	}
	return img, nil
}

// Grayscale converts an image with ITU-R 601 luma weights.
func Grayscale(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	gray := image.NewGray(b)
	draw.Draw(gray, b, img, b.Min, draw.Src)
	return gray
}

// LaplacianVariance is the variance of the 4-neighbour Laplacian over the
// interior pixels of a grayscale image. Blurry images score low.
func LaplacianVariance(img *image.Gray) float64 {
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}

	at := func(x, y int) float64 {
		return float64(img.GrayAt(x, y).Y)
	}

	var sum, sq float64
	var n int
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			v := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			sum += v
			sq += v * v
			n++
		}
	}

	mean := sum / float64(n)
	return sq/float64(n) - mean*mean
}
