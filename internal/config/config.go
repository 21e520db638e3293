// Package config handles reconstruction settings loading and management.
package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"

	"github.com/golang/geo/r3"

	"github.com/Faultbox/objectify/internal/imageio"
	"github.com/Faultbox/objectify/pkg/lighting"
)

// Config holds all reconstruction settings.
type Config struct {
	Lights         LightsConfig         `yaml:"lights"`
	Reconstruction ReconstructionConfig `yaml:"reconstruction"`
	Output         OutputConfig         `yaml:"output"`
	Logging        LoggingConfig        `yaml:"logging"`
}

// LightsConfig lists one direction per capture, in capture order.
type LightsConfig [][3]float64

// ReconstructionConfig holds the numerical pipeline settings.
type ReconstructionConfig struct {
	Workers      int     `yaml:"workers"`
	TileRows     int     `yaml:"tile_rows"`
	BlurRadius   float64 `yaml:"blur_radius"`   // Gaussian sigma, 0 disables
	MaxDimension int     `yaml:"max_dimension"` // 0 keeps full resolution
	MinMagnitude float64 `yaml:"min_magnitude"`
	MinNz        float64 `yaml:"min_nz"`
	Refine       int     `yaml:"refine"` // relaxation sweeps after path integration
	PixelScale   float64 `yaml:"pixel_scale"`
	HeightScale  float64 `yaml:"height_scale"`
}

// OutputConfig holds where and how results are written.
type OutputConfig struct {
	Dir           string `yaml:"dir"`
	Name          string `yaml:"name"`
	MapFormat     string `yaml:"map_format"`
	TextureFormat string `yaml:"texture_format"`
	JPEGQuality   int    `yaml:"jpeg_quality"`
	Bundle        bool   `yaml:"bundle"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
}

// Default returns a Config with a four light rig at 45 degrees elevation.
func Default() *Config {
	return &Config{
		Lights: defaultRig(4, 45),
		Reconstruction: ReconstructionConfig{
			Workers:      runtime.NumCPU(),
			TileRows:     16,
			MinMagnitude: 1e-6,
			MinNz:        1e-3,
			PixelScale:   1,
			HeightScale:  1,
		},
		Output: OutputConfig{
			Dir:           "out",
			Name:          "objectify_model",
			MapFormat:     "png",
			TextureFormat: "jpg",
			JPEGQuality:   90,
			Bundle:        true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// defaultRig places n lights evenly around the optical axis.
func defaultRig(n int, elevationDeg float64) LightsConfig {
	el := elevationDeg * math.Pi / 180
	rig := make(LightsConfig, n)
	for i := range rig {
		az := 2 * math.Pi * float64(i) / float64(n)
		rig[i] = [3]float64{
			round6(math.Cos(el) * math.Cos(az)),
			round6(math.Cos(el) * math.Sin(az)),
			round6(math.Sin(el)),
		}
	}
	return rig
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// LightDirections returns the configured lights as vectors.
func (c *Config) LightDirections() []r3.Vector {
	dirs := make([]r3.Vector, len(c.Lights))
	for i, l := range c.Lights {
		dirs[i] = r3.Vector{X: l[0], Y: l[1], Z: l[2]}
	}
	return dirs
}

// Validate reports settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Lights) < lighting.MinLights {
		errs = append(errs, fmt.Errorf("lights: %w: need at least %d directions, got %d",
			lighting.ErrUnderdetermined, lighting.MinLights, len(c.Lights)))
	}
	if c.Reconstruction.Workers < 0 {
		errs = append(errs, errors.New("reconstruction.workers: must not be negative"))
	}
	if c.Reconstruction.BlurRadius < 0 {
		errs = append(errs, errors.New("reconstruction.blur_radius: must not be negative"))
	}
	if c.Reconstruction.PixelScale <= 0 {
		errs = append(errs, errors.New("reconstruction.pixel_scale: must be positive"))
	}
	if f, err := c.MapFormat(); err != nil {
		errs = append(errs, fmt.Errorf("output.map_format: %w", err))
	} else if f == imageio.JPEG {
		errs = append(errs, errors.New("output.map_format: maps must be lossless (png or webp)"))
	}
	if _, err := c.TextureFormat(); err != nil {
		errs = append(errs, fmt.Errorf("output.texture_format: %w", err))
	}
	return errors.Join(errs...)
}

// MapFormat parses Output.MapFormat.
func (c *Config) MapFormat() (imageio.Format, error) {
	return imageio.ParseFormat(c.Output.MapFormat)
}

// TextureFormat parses Output.TextureFormat.
func (c *Config) TextureFormat() (imageio.Format, error) {
	return imageio.ParseFormat(c.Output.TextureFormat)
}
