package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/Faultbox/objectify/pkg/lighting"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if len(cfg.Lights) != 4 {
		t.Fatalf("expected 4 default lights, got %d", len(cfg.Lights))
	}
	for i, l := range cfg.Lights {
		n := math.Sqrt(l[0]*l[0] + l[1]*l[1] + l[2]*l[2])
		if math.Abs(n-1) > 1e-5 {
			t.Errorf("light %d has length %f, want 1", i, n)
		}
		if math.Abs(l[2]-math.Sqrt2/2) > 1e-5 {
			t.Errorf("light %d z = %f, want 45 degree elevation", i, l[2])
		}
	}

	if cfg.Reconstruction.Workers < 1 {
		t.Errorf("expected at least 1 worker, got %d", cfg.Reconstruction.Workers)
	}
	if cfg.Reconstruction.TileRows != 16 {
		t.Errorf("expected tile rows 16, got %d", cfg.Reconstruction.TileRows)
	}
	if cfg.Reconstruction.MinMagnitude != 1e-6 {
		t.Errorf("expected min magnitude 1e-6, got %g", cfg.Reconstruction.MinMagnitude)
	}
	if cfg.Reconstruction.MinNz != 1e-3 {
		t.Errorf("expected min nz 1e-3, got %g", cfg.Reconstruction.MinNz)
	}

	if cfg.Output.Name != "objectify_model" {
		t.Errorf("expected name objectify_model, got %s", cfg.Output.Name)
	}
	if cfg.Output.JPEGQuality != 90 {
		t.Errorf("expected jpeg quality 90, got %d", cfg.Output.JPEGQuality)
	}
	if !cfg.Output.Bundle {
		t.Error("expected bundle to be enabled by default")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level 'info', got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)

	yamlContent := `
lights:
  - [0, 0, 1]
  - [1, 0, 1]
  - [0, 1, 1]

reconstruction:
  workers: 3
  blur_radius: 1.5
  refine: 20
  height_scale: 0.25

output:
  dir: "scans"
  map_format: webp
  texture_format: png
  bundle: false

logging:
  level: "debug"
  log_file: "objectify.log"
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg := Default()
	if err := loadFromFile(cfg, configPath); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	wantLights := LightsConfig{{0, 0, 1}, {1, 0, 1}, {0, 1, 1}}
	if diff := cmp.Diff(wantLights, cfg.Lights); diff != "" {
		t.Errorf("lights mismatch (-want +got):\n%s", diff)
	}
	if cfg.Reconstruction.Workers != 3 {
		t.Errorf("expected workers 3, got %d", cfg.Reconstruction.Workers)
	}
	if cfg.Reconstruction.BlurRadius != 1.5 {
		t.Errorf("expected blur 1.5, got %g", cfg.Reconstruction.BlurRadius)
	}
	if cfg.Reconstruction.Refine != 20 {
		t.Errorf("expected refine 20, got %d", cfg.Reconstruction.Refine)
	}
	if cfg.Reconstruction.HeightScale != 0.25 {
		t.Errorf("expected height scale 0.25, got %g", cfg.Reconstruction.HeightScale)
	}
	// Keys absent from the file keep their defaults.
	if cfg.Reconstruction.TileRows != 16 {
		t.Errorf("expected default tile rows 16, got %d", cfg.Reconstruction.TileRows)
	}
	if cfg.Output.Name != "objectify_model" {
		t.Errorf("expected default name, got %s", cfg.Output.Name)
	}
	if cfg.Output.Dir != "scans" || cfg.Output.Bundle {
		t.Errorf("output = %+v", cfg.Output)
	}
	if cfg.Logging.LogFile != "objectify.log" {
		t.Errorf("expected log file objectify.log, got %s", cfg.Logging.LogFile)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v", err)
	}
}

func TestLoadFromFileInvalid(t *testing.T) {
	tests := map[string]string{
		"syntax":       "reconstruction:\n  workers: [\n",
		"short light":  "lights:\n  - [0, 1]\n",
		"wrong scalar": "reconstruction:\n  workers: many\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "invalid.yaml")
			if err := os.WriteFile(path, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if err := loadFromFile(Default(), path); err == nil {
				t.Error("expected error loading invalid YAML, got nil")
			}
		})
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load("/nonexistent/path/objectify.yaml"); err == nil {
		t.Error("expected error loading missing file, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"two lights", func(c *Config) { c.Lights = c.Lights[:2] }, "at least 3"},
		{"negative blur", func(c *Config) { c.Reconstruction.BlurRadius = -1 }, "blur_radius"},
		{"zero pixel scale", func(c *Config) { c.Reconstruction.PixelScale = 0 }, "pixel_scale"},
		{"lossy maps", func(c *Config) { c.Output.MapFormat = "jpg" }, "lossless"},
		{"unknown texture", func(c *Config) { c.Output.TextureFormat = "gif" }, "texture_format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestValidateTooFewLights(t *testing.T) {
	cfg := Default()
	cfg.Lights = cfg.Lights[:2]
	if err := cfg.Validate(); !errors.Is(err, lighting.ErrUnderdetermined) {
		t.Errorf("Validate() = %v, want ErrUnderdetermined", err)
	}

	// Degenerate directions are judged by the lighting model, not here.
	cfg.Lights = LightsConfig{{}, {}, {}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v for three zero lights, want nil", err)
	}
}

func TestLightDirections(t *testing.T) {
	cfg := Default()
	cfg.Lights = LightsConfig{{0, 0, 2}, {1, 0, 1}, {0, 1, 1}}
	dirs := cfg.LightDirections()
	if len(dirs) != 3 || dirs[0].Z != 2 || dirs[1].X != 1 {
		t.Errorf("LightDirections() = %v", dirs)
	}
}

func TestConfigDir(t *testing.T) {
	dir := ConfigDir()
	if dir == "" {
		t.Error("ConfigDir returned empty string")
	}
	if !filepath.IsAbs(dir) {
		t.Errorf("ConfigDir should return absolute path, got %s", dir)
	}
}

func TestFindConfigFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Chdir(t.TempDir())

	if path := findConfigFile(); path != "" {
		t.Errorf("expected empty path when no config exists, got %s", path)
	}

	if err := os.WriteFile(FileName, []byte("output:\n  name: local\n"), 0644); err != nil {
		t.Fatalf("failed to create test config: %v", err)
	}
	if path := findConfigFile(); path != FileName {
		t.Errorf("findConfigFile() = %q, want %q", path, FileName)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Output.Name != "local" {
		t.Errorf("expected name from discovered file, got %s", cfg.Output.Name)
	}
}

func TestApplyOverrides(t *testing.T) {
	tests := []struct {
		name   string
		o      Overrides
		verify func(*testing.T, *Config)
	}{
		{
			name: "debug",
			o:    Overrides{Debug: true},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Logging.Level != "debug" {
					t.Errorf("expected log level 'debug', got %s", cfg.Logging.Level)
				}
			},
		},
		{
			name: "workers and refine",
			o:    Overrides{Workers: 2, Refine: 50},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Reconstruction.Workers != 2 || cfg.Reconstruction.Refine != 50 {
					t.Errorf("reconstruction = %+v", cfg.Reconstruction)
				}
			},
		},
		{
			name: "output",
			o:    Overrides{OutDir: "/tmp/scan", Name: "mug", NoBundle: true},
			verify: func(t *testing.T, cfg *Config) {
				if cfg.Output.Dir != "/tmp/scan" || cfg.Output.Name != "mug" || cfg.Output.Bundle {
					t.Errorf("output = %+v", cfg.Output)
				}
			},
		},
		{
			name: "zero values keep settings",
			o:    Overrides{},
			verify: func(t *testing.T, cfg *Config) {
				if diff := cmp.Diff(Default(), cfg); diff != "" {
					t.Errorf("config changed (-want +got):\n%s", diff)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyOverrides(tt.o)
			tt.verify(t, cfg)
		})
	}
}

func TestLoadPriority(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), FileName)
	if err := os.WriteFile(configPath, []byte("reconstruction:\n  workers: 6\n  tile_rows: 4\n"), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	cfg.ApplyOverrides(Overrides{Workers: 12})

	if cfg.Reconstruction.Workers != 12 {
		t.Errorf("expected workers 12 from override, got %d", cfg.Reconstruction.Workers)
	}
	if cfg.Reconstruction.TileRows != 4 {
		t.Errorf("expected tile rows 4 from file, got %d", cfg.Reconstruction.TileRows)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	want := Default()
	want.Output.Name = "saved"

	if err := want.SaveTo(path); err != nil {
		t.Fatalf("SaveTo() error: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}
