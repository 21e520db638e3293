// Package pipeline runs one reconstruction session: captures in, normal
// map, height map and textured mesh out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/Faultbox/objectify/internal/config"
	"github.com/Faultbox/objectify/internal/logger"
	"github.com/Faultbox/objectify/pkg/heights"
	"github.com/Faultbox/objectify/pkg/intensity"
	"github.com/Faultbox/objectify/pkg/lighting"
	"github.com/Faultbox/objectify/pkg/linalg"
	"github.com/Faultbox/objectify/pkg/mesh"
	"github.com/Faultbox/objectify/pkg/normals"
)

// Stage names used in log fields and errors.
const (
	StageLighting  = "lighting"
	StageIntensity = "intensity"
	StageNormals   = "normals"
	StageHeights   = "heights"
	StageMesh      = "mesh"
)

// Input is one capture session. Captures[i] was lit from the i-th
// configured light.
type Input struct {
	Captures []image.Image
	Texture  image.Image // nil uses the mean of the captures
}

// Stats summarises a session.
type Stats struct {
	Width, Height int
	Lights        int
	ValidNormals  int
	ValidHeights  int
	MeanAlbedo    float64
	MinHeight     float64
	MaxHeight     float64
	Vertices      int
	Faces         int
	Stages        map[string]time.Duration
	Elapsed       time.Duration
}

// Result holds everything a session produced. Mesh is nil when meshing
// failed; the fields before it are still usable.
type Result struct {
	Session string
	Normals *normals.Field
	Heights *heights.Field
	Mesh    *mesh.Mesh
	Texture image.Image
	Stats   Stats
}

type session struct {
	id  string
	cfg *config.Config
	log *zap.Logger
	res *Result
}

// Run executes every stage in order. Cancellation is honoured between
// stages and inside the parallel ones. When only meshing fails the
// partial result is returned together with mesh.ErrInsufficientGeometry.
func Run(ctx context.Context, cfg *config.Config, in Input) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(in.Captures) != len(cfg.Lights) {
		return nil, fmt.Errorf("%w: got %d captures for %d lights",
			linalg.ErrDimensionMismatch, len(in.Captures), len(cfg.Lights))
	}

	id := uuid.New().String()
	s := &session{
		id:  id,
		cfg: cfg,
		log: logger.Named("pipeline").With(zap.String("session", id)),
		res: &Result{Session: id, Stats: Stats{Lights: len(cfg.Lights), Stages: map[string]time.Duration{}}},
	}

	start := time.Now()
	err := s.run(ctx, in)
	s.res.Stats.Elapsed = time.Since(start)

	switch {
	case err == nil:
		s.log.Info("session complete",
			zap.Int("vertices", s.res.Stats.Vertices),
			zap.Int("faces", s.res.Stats.Faces),
			zap.Duration("elapsed", s.res.Stats.Elapsed))
		return s.res, nil
	case errors.Is(err, mesh.ErrInsufficientGeometry):
		s.log.Warn("mesh skipped, maps still available", zap.Error(err))
		return s.res, err
	default:
		s.log.Error("session failed", zap.Error(err))
		return nil, err
	}
}

func (s *session) run(ctx context.Context, in Input) error {
	rc := s.cfg.Reconstruction

	var model *lighting.Model
	if err := s.stage(ctx, StageLighting, func() (err error) {
		model, err = lighting.NewModel(s.cfg.LightDirections())
		return err
	}); err != nil {
		return err
	}

	var samples []*intensity.Image
	if err := s.stage(ctx, StageIntensity, func() (err error) {
		prepared := intensity.PreprocessAll(in.Captures, intensity.Options{
			BlurSigma:    rc.BlurRadius,
			MaxDimension: rc.MaxDimension,
		})
		samples, err = intensity.FromImages(prepared, intensity.Options{})
		if err != nil {
			return err
		}
		s.res.Texture = in.Texture
		if s.res.Texture == nil {
			s.res.Texture = intensity.Average(prepared)
		}
		s.res.Stats.Width, s.res.Stats.Height = samples[0].Width, samples[0].Height
		s.log.Debug("captures converted",
			zap.Int("width", s.res.Stats.Width),
			zap.Int("height", s.res.Stats.Height),
			zap.Int("lights", model.Len()))
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageNormals, func() (err error) {
		s.res.Normals, err = normals.Estimate(ctx, model, samples, normals.Options{
			Workers:      rc.Workers,
			TileRows:     rc.TileRows,
			MinMagnitude: rc.MinMagnitude,
		})
		if err != nil {
			return err
		}
		s.res.Stats.ValidNormals = s.res.Normals.ValidCount()
		s.res.Stats.MeanAlbedo = meanAlbedo(s.res.Normals)
		return nil
	}); err != nil {
		return err
	}

	if err := s.stage(ctx, StageHeights, func() (err error) {
		s.res.Heights, err = heights.Integrate(ctx, s.res.Normals, heights.Options{
			Workers: rc.Workers,
			MinNz:   rc.MinNz,
			Refine:  rc.Refine,
		})
		if err != nil {
			return err
		}
		s.res.Stats.ValidHeights = s.res.Heights.ValidCount()
		s.res.Stats.MinHeight, s.res.Stats.MaxHeight, _ = s.res.Heights.Range()
		return nil
	}); err != nil {
		return err
	}

	return s.stage(ctx, StageMesh, func() (err error) {
		s.res.Mesh, err = mesh.Build(s.res.Heights, s.res.Texture, mesh.Options{
			PixelScale:  rc.PixelScale,
			HeightScale: rc.HeightScale,
		})
		if err != nil {
			return err
		}
		s.res.Stats.Vertices = len(s.res.Mesh.Vertices)
		s.res.Stats.Faces = len(s.res.Mesh.Faces)
		return nil
	})
}

// stage runs fn after a cancellation checkpoint and records its duration.
func (s *session) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	s.res.Stats.Stages[name] = elapsed
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	fields := []zap.Field{zap.String("stage", name), zap.Duration("elapsed", elapsed)}
	switch name {
	case StageNormals:
		fields = append(fields, zap.Int("valid", s.res.Stats.ValidNormals), zap.Float64("albedo", s.res.Stats.MeanAlbedo))
	case StageHeights:
		fields = append(fields, zap.Int("valid", s.res.Stats.ValidHeights))
	}
	s.log.Info("stage done", fields...)
	return nil
}

func meanAlbedo(f *normals.Field) float64 {
	vals := make([]float64, 0, len(f.Albedo))
	for i, ok := range f.Valid {
		if ok {
			vals = append(vals, f.Albedo[i])
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}
