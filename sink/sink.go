// Package sink persists rendered frames. Pixels arrive tightly packed,
// row-major, four bytes per pixel in RGBA order.
package sink

import (
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Sink accepts one packed RGBA8 image.
type Sink interface {
	Write(width, height int, rgba []byte) error
}

// ErrUnknownFormat is returned for a file extension with no encoder.
var ErrUnknownFormat = errors.New("sink: unknown image format")

// Image wraps packed pixels without copying them.
func Image(width, height int, rgba []byte) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.Newf("sink: extent %dx%d", width, height)
	}
	if len(rgba) != width*height*4 {
		return nil, errors.Newf("sink: %d bytes for %dx%d pixels", len(rgba), width, height)
	}
	return &image.NRGBA{
		Pix:    rgba,
		Stride: width * 4,
		Rect:   image.Rect(0, 0, width, height),
	}, nil
}

// Encoder writes an image in one file format.
type Encoder func(w io.Writer, m image.Image) error

var encoders = map[string]Encoder{
	".png":  png.Encode,
	".bmp":  bmp.Encode,
	".tif":  encodeTIFF,
	".tiff": encodeTIFF,
}

func encodeTIFF(w io.Writer, m image.Image) error {
	return tiff.Encode(w, m, &tiff.Options{Compression: tiff.Deflate, Predictor: true})
}

// EncoderFor picks the encoder for the extension of path.
func EncoderFor(path string) (Encoder, error) {
	ext := strings.ToLower(filepath.Ext(path))
	enc, ok := encoders[ext]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", ext)
	}
	return enc, nil
}

// File writes each image to Path, replacing what was there.
type File struct {
	Path string
}

func (f File) Write(width, height int, rgba []byte) (err error) {
	enc, err := EncoderFor(f.Path)
	if err != nil {
		return err
	}
	m, err := Image(width, height, rgba)
	if err != nil {
		return err
	}
	out, err := os.Create(f.Path)
	if err != nil {
		return errors.Wrap(err, "sink")
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "sink")
		}
	}()
	return errors.Wrapf(enc(out, m), "sink: encode %s", f.Path)
}

// Memory keeps the last image written, copied.
type Memory struct {
	mu     sync.Mutex
	width  int
	height int
	pix    []byte
	count  int
}

func (m *Memory) Write(width, height int, rgba []byte) error {
	if _, err := Image(width, height, rgba); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.width, m.height = width, height
	m.pix = append(m.pix[:0], rgba...)
	m.count++
	return nil
}

// Last returns the last image, or nil if nothing was written.
func (m *Memory) Last() *image.NRGBA {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.count == 0 {
		return nil
	}
	img, _ := Image(m.width, m.height, append([]byte(nil), m.pix...))
	return img
}

// Count returns how many images were written.
func (m *Memory) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}
