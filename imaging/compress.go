package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"

	"github.com/apex/log"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/draw"
)

const (
	// DefaultTargetBytes is 9.5MiB, under the detection provider's 10MB cap.
	DefaultTargetBytes  = 9_961_472
	DefaultMaxDimension = 1920

	startQuality = 85
	qualityStep  = 10
	minQuality   = 10
)

// GetImageOrientation extracts the EXIF orientation, defaulting to 1.
func GetImageOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	orientation, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientVal, err := orientation.Int(0)
	if err != nil {
		return 1
	}
	return orientVal
}

// CorrectImageOrientation rotates or flips img so that orientation 1 holds.
func CorrectImageOrientation(img image.Image, orientation int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	var dst *image.RGBA
	var mapPoint func(x, y int) (int, int)
	switch orientation {
	case 2:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapPoint = func(x, y int) (int, int) { return w - 1 - x, y }
	case 3:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapPoint = func(x, y int) (int, int) { return w - 1 - x, h - 1 - y }
	case 4:
		dst = image.NewRGBA(image.Rect(0, 0, w, h))
		mapPoint = func(x, y int) (int, int) { return x, h - 1 - y }
	case 5:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapPoint = func(x, y int) (int, int) { return y, x }
	case 6:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapPoint = func(x, y int) (int, int) { return h - 1 - y, x }
	case 7:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapPoint = func(x, y int) (int, int) { return h - 1 - y, w - 1 - x }
	case 8:
		dst = image.NewRGBA(image.Rect(0, 0, h, w))
		mapPoint = func(x, y int) (int, int) { return y, w - 1 - x }
	default:
		return img
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			nx, ny := mapPoint(x, y)
			dst.Set(nx, ny, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return dst
}

// fitWithin scales w x h down so the longest side is at most maxDim.
func fitWithin(w, h, maxDim int) (int, int) {
	if maxDim <= 0 || (w <= maxDim && h <= maxDim) {
		return w, h
	}
	scale := float64(maxDim) / float64(w)
	if hs := float64(maxDim) / float64(h); hs < scale {
		scale = hs
	}
	nw, nh := int(math.Round(float64(w)*scale)), int(math.Round(float64(h)*scale))
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// Compress shrinks an image until it fits in targetBytes. Data already under
// the target is returned unchanged. Otherwise the image is oriented, scaled to
// maxDim and re-encoded as JPEG, lowering quality from 85 in steps of 10.
func Compress(data []byte, targetBytes, maxDim int) ([]byte, error) {
	if len(data) <= targetBytes {
		return data, nil
	}

	orientation := GetImageOrientation(data)
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if orientation != 1 {
		img = CorrectImageOrientation(img, orientation)
		log.Infof("Applied orientation correction: %d", orientation)
	}

	b := img.Bounds()
	nw, nh := fitWithin(b.Dx(), b.Dy(), maxDim)
	if nw != b.Dx() || nh != b.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, nw, nh))
		draw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), img, b, draw.Over, nil)
		img = scaled
	}

	quality := startQuality
	var buf bytes.Buffer
	for {
		buf.Reset()
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode compressed image: %w", err)
		}
		if buf.Len() <= targetBytes || quality <= minQuality {
			break
		}
		quality -= qualityStep
	}

	log.Infof("Image compressed: %d bytes -> %d bytes (quality: %d, %dx%d -> %dx%d, orientation: %d)",
		len(data), buf.Len(), quality, b.Dx(), b.Dy(), nw, nh, orientation)
	return buf.Bytes(), nil
}
