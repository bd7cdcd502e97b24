package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"ecowing/models"

	"github.com/fogleman/gg"
	"github.com/rwcarlsen/goexif/exif"
)

// BoxGrid is the edge length of the normalized detection grid.
const BoxGrid = 1000.0

var ErrNoGPS = errors.New("no GPS data in image")

// PixelRect is a box in image pixels.
type PixelRect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ProjectBox maps a 0-1000 grid box onto an image of w x h pixels.
func ProjectBox(b models.BoundingBox, w, h float64) PixelRect {
	return PixelRect{
		Left:   b.Xmin / BoxGrid * w,
		Top:    b.Ymin / BoxGrid * h,
		Width:  (b.Xmax - b.Xmin) / BoxGrid * w,
		Height: (b.Ymax - b.Ymin) / BoxGrid * h,
	}
}

// ExtractGPS reads the EXIF GPS position of a photo.
func ExtractGPS(data []byte) (float64, float64, error) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 0, 0, ErrNoGPS
	}
	lat, lng, err := x.LatLong()
	if err != nil || math.IsNaN(lat) || math.IsNaN(lng) {
		return 0, 0, ErrNoGPS
	}
	return lat, lng, nil
}

// Annotate draws the detection boxes and their labels onto the image and
// returns it as JPEG.
func Annotate(data []byte, boxes []models.BoundingBox, hexColor string) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if o := GetImageOrientation(data); o != 1 {
		img = CorrectImageOrientation(img, o)
	}

	dc := gg.NewContextForImage(img)
	w, h := float64(dc.Width()), float64(dc.Height())
	lineWidth := math.Max(2, math.Min(w, h)/250)

	for _, b := range boxes {
		r := ProjectBox(b, w, h)
		dc.SetHexColor(hexColor)
		dc.SetLineWidth(lineWidth)
		dc.DrawRectangle(r.Left, r.Top, r.Width, r.Height)
		dc.Stroke()

		if b.Label == "" {
			continue
		}
		tw, th := dc.MeasureString(b.Label)
		ty := math.Max(r.Top-th-4, 0)
		dc.DrawRectangle(r.Left, ty, tw+8, th+4)
		dc.Fill()
		dc.SetRGB(1, 1, 1)
		dc.DrawString(b.Label, r.Left+4, ty+th+1)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dc.Image(), &jpeg.Options{Quality: startQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode annotated image: %w", err)
	}
	return buf.Bytes(), nil
}
