// Package config loads the settings of the vkq command from TOML.
package config

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	units "github.com/docker/go-units"
	"github.com/pelletier/go-toml/v2"

	"github.com/celer/vkq/hal"
)

type Config struct {
	// Backend names a registered hal backend. Empty tries vulkan, then
	// soft.
	Backend string `toml:"backend"`
	Verbose bool   `toml:"verbose"`
	// Priority is the queue priority in [0, 1].
	Priority float32 `toml:"priority"`
	// WaitTimeout bounds every host wait, as a Go duration. Empty or
	// "forever" never times out.
	WaitTimeout string `toml:"wait_timeout"`

	Compute Compute `toml:"compute"`
	Render  Render  `toml:"render"`
	Window  Window  `toml:"window"`
	Soft    Soft    `toml:"soft"`
}

type Compute struct {
	K        uint32 `toml:"k"`
	Elements int    `toml:"elements"`
}

type Render struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Format string `toml:"format"`
	// Output is the image file; its extension picks the encoder.
	Output string     `toml:"output"`
	Clear  [4]float32 `toml:"clear"`
}

type Window struct {
	Title       string `toml:"title"`
	Width       int    `toml:"width"`
	Height      int    `toml:"height"`
	PresentMode string `toml:"present_mode"`
	// MaxFrames stops the loop after that many frames when positive.
	MaxFrames int `toml:"max_frames"`
}

// Soft configures the CPU backend.
type Soft struct {
	HeapSize string `toml:"heap_size"`
	// Workers bounds parallel rasterizer bands and workgroups; zero uses
	// GOMAXPROCS.
	Workers int `toml:"workers"`
}

func Default() Config {
	return Config{
		Priority:    0.5,
		WaitTimeout: "10s",
		Compute:     Compute{K: 12, Elements: 65536},
		Render: Render{
			Width:  1024,
			Height: 1024,
			Format: hal.FormatRGBA8Unorm.String(),
			Output: "triangle.png",
			Clear:  [4]float32{0, 0, 1, 1},
		},
		Window: Window{
			Title:       "vkq",
			Width:       1280,
			Height:      1024,
			PresentMode: hal.PresentFifo.String(),
		},
		Soft: Soft{HeapSize: "512MiB"},
	}
}

// Load reads path over the defaults. Unknown keys are an error.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config")
	}
	defer f.Close()
	c, err := Decode(f)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config %s", path)
	}
	return c, nil
}

func Decode(r io.Reader) (Config, error) {
	c := Default()
	d := toml.NewDecoder(r).DisallowUnknownFields()
	if err := d.Decode(&c); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, errors.Newf("unknown keys:\n%s", strict.String())
		}
		var de *toml.DecodeError
		if errors.As(err, &de) {
			row, col := de.Position()
			return Config{}, errors.Newf("line %d column %d: %s", row, col, de.Error())
		}
		return Config{}, err
	}
	return c, c.Validate()
}

// Encode writes c as TOML.
func (c Config) Encode(w io.Writer) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	enc.SetIndentTables(true)
	if err := enc.Encode(c); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func invalid(key string, format string, args ...any) error {
	return errors.Newf("%s: "+format, append([]any{key}, args...)...)
}

func (c Config) Validate() error {
	if c.Priority < 0 || c.Priority > 1 {
		return invalid("priority", "%g is outside [0, 1]", c.Priority)
	}
	if _, err := c.Timeout(); err != nil {
		return err
	}
	if c.Compute.Elements <= 0 {
		return invalid("compute.elements", "must be positive, got %d", c.Compute.Elements)
	}
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return invalid("render.width", "extent %dx%d", c.Render.Width, c.Render.Height)
	}
	if _, err := c.Render.PixelFormat(); err != nil {
		return err
	}
	if c.Render.Output == "" {
		return invalid("render.output", "empty")
	}
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		return invalid("window.width", "extent %dx%d", c.Window.Width, c.Window.Height)
	}
	if _, err := c.Window.Mode(); err != nil {
		return err
	}
	if _, err := c.Soft.HeapBytes(); err != nil {
		return err
	}
	if c.Soft.Workers < 0 {
		return invalid("soft.workers", "negative")
	}
	return nil
}

// Timeout returns WaitTimeout as a duration; negative means forever.
func (c Config) Timeout() (time.Duration, error) {
	if c.WaitTimeout == "" || c.WaitTimeout == "forever" {
		return -1, nil
	}
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil || d < 0 {
		return 0, invalid("wait_timeout", "%q is not a duration", c.WaitTimeout)
	}
	return d, nil
}

// LogLevel is the level the command logs at.
func (c Config) LogLevel() slog.Level {
	if c.Verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func (r Render) PixelFormat() (hal.Format, error) {
	f, ok := hal.ParseFormat(r.Format)
	if !ok || f.Components() != 4 || f.BytesPerPixel() != 4 {
		return hal.FormatUndefined, invalid("render.format", "%q is not an 8-bit four channel format", r.Format)
	}
	return f, nil
}

func (r Render) Extent() hal.Extent { return hal.Extent2D(r.Width, r.Height) }

func (w Window) Mode() (hal.PresentMode, error) {
	m, ok := hal.ParsePresentMode(w.PresentMode)
	if !ok {
		return 0, invalid("window.present_mode", "unknown mode %q", w.PresentMode)
	}
	return m, nil
}

// HeapBytes parses HeapSize with binary units ("512MiB", "1g").
func (s Soft) HeapBytes() (int64, error) {
	if s.HeapSize == "" {
		return 0, nil
	}
	n, err := units.RAMInBytes(s.HeapSize)
	if err != nil || n <= 0 {
		return 0, invalid("soft.heap_size", "%q is not a size", s.HeapSize)
	}
	return n, nil
}
