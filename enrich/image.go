package enrich

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"
)

// Decode reads a png, jpeg, gif or webp image.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	return img, format, nil
}

// EncodePNG downscales img to maxWidth keeping the aspect ratio (0 or a
// narrower image means no resize) and encodes it as PNG.
func EncodePNG(img image.Image, maxWidth int) ([]byte, error) {
	b := img.Bounds()
	if maxWidth > 0 && b.Dx() > maxWidth {
		h := uint(float64(maxWidth) * float64(b.Dy()) / float64(b.Dx()))
		if h == 0 {
			h = 1
		}
		img = resize.Resize(uint(maxWidth), h, img, resize.Lanczos3)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DHash computes a 64-bit difference hash: the image is shrunk to 9x8
// grayscale and each bit says whether a pixel is brighter than its right
// neighbour.
func DHash(img image.Image) uint64 {
	small := resize.Resize(9, 8, img, resize.Bilinear)
	var hash uint64
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			hash <<= 1
			if luminance(small, x, y) > luminance(small, x+1, y) {
				hash |= 1
			}
		}
	}
	return hash
}

func luminance(img image.Image, x, y int) int {
	b := img.Bounds()
	r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
	return int(0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8))
}

// HammingDistance counts differing bits between two hashes.
func HammingDistance(a, b uint64) int {
	n := 0
	for x := a ^ b; x != 0; x &= x - 1 {
		n++
	}
	return n
}
