// Package normals estimates per-pixel surface normals and albedo from a
// set of aligned captures lit from known directions.
package normals

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"runtime"

	"github.com/golang/geo/r3"
	"golang.org/x/sync/errgroup"

	"github.com/Faultbox/objectify/pkg/intensity"
	"github.com/Faultbox/objectify/pkg/lighting"
	"github.com/Faultbox/objectify/pkg/linalg"
)

// DefaultMinMagnitude is the solved vector length below which a pixel is
// considered to carry no signal.
const DefaultMinMagnitude = 1e-6

// DefaultTileRows is the number of image rows handed to a worker at once.
const DefaultTileRows = 16

// Field is a W x H grid of unit normals with their albedo and validity.
// Invalid pixels hold a zero normal and zero albedo.
type Field struct {
	Width   int
	Height  int
	Normals []r3.Vector
	Albedo  []float64
	Valid   []bool
}

// NewField returns an all-invalid field.
func NewField(width, height int) *Field {
	n := width * height
	return &Field{
		Width:   width,
		Height:  height,
		Normals: make([]r3.Vector, n),
		Albedo:  make([]float64, n),
		Valid:   make([]bool, n),
	}
}

// At returns the normal and albedo at (x, y).
func (f *Field) At(x, y int) (r3.Vector, float64) {
	i := y*f.Width + x
	return f.Normals[i], f.Albedo[i]
}

// Set stores a normal, normalizing it, with its albedo and marks the pixel
// valid. A zero vector marks the pixel invalid instead.
func (f *Field) Set(x, y int, n r3.Vector, albedo float64) {
	i := y*f.Width + x
	if n.Norm2() == 0 {
		f.Normals[i], f.Albedo[i], f.Valid[i] = r3.Vector{}, 0, false
		return
	}
	f.Normals[i], f.Albedo[i], f.Valid[i] = n.Normalize(), albedo, true
}

// IsValid reports whether (x, y) carries a usable normal.
func (f *Field) IsValid(x, y int) bool {
	return f.Valid[y*f.Width+x]
}

// ValidCount returns the number of valid pixels.
func (f *Field) ValidCount() int {
	n := 0
	for _, v := range f.Valid {
		if v {
			n++
		}
	}
	return n
}

// Options tune the estimator.
type Options struct {
	Workers      int     // parallel tiles; <= 0 uses runtime.NumCPU()
	TileRows     int     // rows per tile; <= 0 uses DefaultTileRows
	MinMagnitude float64 // <= 0 uses DefaultMinMagnitude
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.TileRows <= 0 {
		o.TileRows = DefaultTileRows
	}
	if o.MinMagnitude <= 0 {
		o.MinMagnitude = DefaultMinMagnitude
	}
	return o
}

// Estimate solves the photometric equation for every pixel. Images must be
// one per light of model, all with identical dimensions.
//
// Rows are processed in tiles by a bounded pool of workers sharing the
// read-only model. Cancelling ctx stops scheduling new tiles and returns
// ctx.Err().
func Estimate(ctx context.Context, model *lighting.Model, images []*intensity.Image, opts Options) (*Field, error) {
	if len(images) != model.Len() {
		return nil, fmt.Errorf("%w: %d images for %d lights", linalg.ErrDimensionMismatch, len(images), model.Len())
	}
	width, height := images[0].Width, images[0].Height
	for i, im := range images {
		if im.Width != width || im.Height != height {
			return nil, fmt.Errorf("%w: image %d is %dx%d, image 0 is %dx%d",
				linalg.ErrDimensionMismatch, i, im.Width, im.Height, width, height)
		}
		if len(im.Pix) != width*height {
			return nil, fmt.Errorf("%w: image %d has %d samples, want %d",
				linalg.ErrDimensionMismatch, i, len(im.Pix), width*height)
		}
	}
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("%w: empty images", linalg.ErrDimensionMismatch)
	}

	opts = opts.withDefaults()
	field := NewField(width, height)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)

	for y0 := 0; y0 < height; y0 += opts.TileRows {
		if gctx.Err() != nil {
			break
		}
		y1 := min(y0+opts.TileRows, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return estimateRows(model, images, field, y0, y1, opts.MinMagnitude)
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return field, nil
}

// estimateRows fills rows [y0, y1) of field. Each tile writes a disjoint
// range of the output slices.
func estimateRows(model *lighting.Model, images []*intensity.Image, field *Field, y0, y1 int, minMag float64) error {
	samples := make([]float64, len(images))
	for y := y0; y < y1; y++ {
		for x := 0; x < field.Width; x++ {
			i := y*field.Width + x

			lit := false
			for k, im := range images {
				samples[k] = im.Pix[i]
				if samples[k] != 0 {
					lit = true
				}
			}
			if !lit {
				continue
			}

			g, err := model.Solve(samples)
			if err != nil {
				return err
			}
			mag := g.Norm()
			if mag < minMag || math.IsNaN(mag) || math.IsInf(mag, 0) {
				continue
			}

			field.Normals[i] = g.Mul(1 / mag)
			field.Albedo[i] = mag
			field.Valid[i] = true
		}
	}
	return nil
}

// ToImage renders the field as a normal map: each component in [-1, 1] is
// mapped to [0, 255]. Invalid pixels are fully transparent.
func (f *Field) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			if !f.Valid[i] {
				continue
			}
			n := f.Normals[i]
			img.SetNRGBA(x, y, color.NRGBA{
				R: encodeComponent(n.X),
				G: encodeComponent(n.Y),
				B: encodeComponent(n.Z),
				A: 255,
			})
		}
	}
	return img
}

func encodeComponent(v float64) uint8 {
	c := (v + 1) / 2 * 255
	if c < 0 {
		return 0
	}
	if c > 255 {
		return 255
	}
	return uint8(math.Round(c))
}
