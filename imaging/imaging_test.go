package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"testing"

	"ecowing/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noisePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	rnd := rand.New(rand.NewSource(1))
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), uint8(rnd.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProjectBox(t *testing.T) {
	testCases := []struct {
		name   string
		box    models.BoundingBox
		w, h   float64
		expect PixelRect
	}{
		{"full frame", models.BoundingBox{Ymin: 0, Xmin: 0, Ymax: 1000, Xmax: 1000}, 800, 600, PixelRect{0, 0, 800, 600}},
		{"quarter", models.BoundingBox{Ymin: 250, Xmin: 500, Ymax: 750, Xmax: 1000}, 1000, 400, PixelRect{500, 100, 500, 200}},
		{"fallback box", models.BoundingBox{Ymin: 200, Xmin: 300, Ymax: 350, Xmax: 450}, 2000, 1000, PixelRect{600, 200, 300, 150}},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expect, ProjectBox(tc.box, tc.w, tc.h), tc.name)
	}
}

func TestCompressLeavesSmallImages(t *testing.T) {
	data := noisePNG(t, 10, 10)
	out, err := Compress(data, len(data)+1, DefaultMaxDimension)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressScalesAndReencodes(t *testing.T) {
	data := noisePNG(t, 200, 100)
	out, err := Compress(data, 5000, 50)
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 50, img.Bounds().Dx())
	assert.Equal(t, 25, img.Bounds().Dy())
}

func TestCompressRejectsGarbage(t *testing.T) {
	_, err := Compress([]byte("not an image at all"), 4, 10)
	assert.Error(t, err)
}

func TestFitWithin(t *testing.T) {
	testCases := []struct {
		w, h, limit int
		eW, eH      int
	}{
		{4000, 3000, 1920, 1920, 1440},
		{3000, 4000, 1920, 1440, 1920},
		{800, 600, 1920, 800, 600},
		{5000, 1, 100, 100, 1},
	}
	for _, tc := range testCases {
		w, h := fitWithin(tc.w, tc.h, tc.limit)
		assert.Equal(t, tc.eW, w)
		assert.Equal(t, tc.eH, h)
	}
}

func TestCorrectImageOrientation(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})

	rotated := CorrectImageOrientation(img, 6)
	assert.Equal(t, 2, rotated.Bounds().Dx())
	assert.Equal(t, 4, rotated.Bounds().Dy())
	r, _, _, _ := rotated.At(1, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)

	assert.Equal(t, image.Image(img), CorrectImageOrientation(img, 1))
}

func TestExtractGPSWithoutExif(t *testing.T) {
	_, _, err := ExtractGPS(noisePNG(t, 4, 4))
	assert.ErrorIs(t, err, ErrNoGPS)
}

func TestAnnotate(t *testing.T) {
	data := noisePNG(t, 100, 80)
	out, err := Annotate(data, []models.BoundingBox{
		{Ymin: 100, Xmin: 100, Ymax: 500, Xmax: 600, Label: "Plastic"},
		{Ymin: 0, Xmin: 0, Ymax: 50, Xmax: 50},
	}, "#ef4444")
	require.NoError(t, err)

	img, err := jpeg.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())
	assert.Equal(t, 80, img.Bounds().Dy())
}
