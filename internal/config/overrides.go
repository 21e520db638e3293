package config

// Overrides carries command line values. Zero values leave the loaded
// setting untouched.
type Overrides struct {
	Debug    bool
	LogFile  string
	Workers  int
	Blur     float64
	Refine   int
	OutDir   string
	Name     string
	NoBundle bool
}

// ApplyOverrides applies command line values, which win over the file.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Debug {
		c.Logging.Level = "debug"
	}
	if o.LogFile != "" {
		c.Logging.LogFile = o.LogFile
	}
	if o.Workers > 0 {
		c.Reconstruction.Workers = o.Workers
	}
	if o.Blur > 0 {
		c.Reconstruction.BlurRadius = o.Blur
	}
	if o.Refine > 0 {
		c.Reconstruction.Refine = o.Refine
	}
	if o.OutDir != "" {
		c.Output.Dir = o.OutDir
	}
	if o.Name != "" {
		c.Output.Name = o.Name
	}
	if o.NoBundle {
		c.Output.Bundle = false
	}
}
