package sink

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

func checker(w, h int) []byte {
	pix := make([]byte, w*h*4)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			if (x+y)%2 == 0 {
				pix[i] = 255
			} else {
				pix[i+2] = 255
			}
			pix[i+3] = 255
		}
	}
	return pix
}

func TestFileFormats(t *testing.T) {
	decoders := map[string]func(f *os.File) (image.Image, error){
		"out.png":  func(f *os.File) (image.Image, error) { return png.Decode(f) },
		"out.bmp":  func(f *os.File) (image.Image, error) { return bmp.Decode(f) },
		"out.tiff": func(f *os.File) (image.Image, error) { return tiff.Decode(f) },
	}
	dir := t.TempDir()
	for name, decode := range decoders {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, File{Path: path}.Write(4, 3, checker(4, 3)))

			f, err := os.Open(path)
			require.NoError(t, err)
			defer f.Close()
			m, err := decode(f)
			require.NoError(t, err)
			assert.Equal(t, image.Rect(0, 0, 4, 3), m.Bounds())

			red := color.NRGBAModel.Convert(m.At(0, 0)).(color.NRGBA)
			blue := color.NRGBAModel.Convert(m.At(1, 0)).(color.NRGBA)
			assert.Equal(t, color.NRGBA{R: 255, A: 255}, red)
			assert.Equal(t, color.NRGBA{B: 255, A: 255}, blue)
		})
	}
}

func TestFileUnknownExtension(t *testing.T) {
	err := File{Path: filepath.Join(t.TempDir(), "out.jpg")}.Write(1, 1, make([]byte, 4))
	assert.True(t, errors.Is(err, ErrUnknownFormat))
}

func TestImageSizeMismatch(t *testing.T) {
	_, err := Image(2, 2, make([]byte, 15))
	assert.Error(t, err)
	_, err = Image(0, 2, nil)
	assert.Error(t, err)
}

func TestMemory(t *testing.T) {
	var m Memory
	assert.Nil(t, m.Last())

	pix := checker(2, 2)
	require.NoError(t, m.Write(2, 2, pix))
	pix[0] = 7 // the sink keeps its own copy
	require.Equal(t, 1, m.Count())

	last := m.Last()
	require.NotNil(t, last)
	assert.Equal(t, uint8(255), last.Pix[0])
	assert.Error(t, m.Write(3, 3, pix))
	assert.Equal(t, 1, m.Count())
}
