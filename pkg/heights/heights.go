// Package heights integrates a normal field into a height field.
//
// Integration walks the first row from the reference pixel (0, 0), whose
// height is 0, and then walks every column downward from that row. Pixels
// without a usable gradient inherit the height of their predecessor on the
// path, so the field is defined everywhere. Errors accumulate along the
// paths; Options.Refine runs Gauss-Seidel sweeps of the discrete Poisson
// equation over valid pixels to spread them out.
package heights

import (
	"context"
	"image"
	"image/color"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/Faultbox/objectify/pkg/normals"
)

// DefaultMinNz is the smallest |nz| for which gradients are trusted.
const DefaultMinNz = 1e-3

// Field is a W x H grid of heights with the validity mask inherited from
// the normal field.
type Field struct {
	Width   int
	Height  int
	Heights []float64
	Valid   []bool
}

// NewField returns a flat, all-invalid field.
func NewField(width, height int) *Field {
	return &Field{
		Width:   width,
		Height:  height,
		Heights: make([]float64, width*height),
		Valid:   make([]bool, width*height),
	}
}

// At returns the height at (x, y).
func (f *Field) At(x, y int) float64 {
	return f.Heights[y*f.Width+x]
}

// IsValid reports whether (x, y) came from a usable normal.
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

// Options tune the integrator.
type Options struct {
	Workers int     // column bands integrated in parallel; <= 0 uses runtime.NumCPU()
	MinNz   float64 // <= 0 uses DefaultMinNz
	Refine  int     // Gauss-Seidel sweeps after path integration; 0 disables
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	if o.MinNz <= 0 {
		o.MinNz = DefaultMinNz
	}
	return o
}

// gradients holds dz/dx and dz/dy per pixel.
type gradients struct {
	p, q  []float64
	valid []bool
}

func computeGradients(nf *normals.Field, minNz float64) gradients {
	n := nf.Width * nf.Height
	g := gradients{
		p:     make([]float64, n),
		q:     make([]float64, n),
		valid: make([]bool, n),
	}
	for i, ok := range nf.Valid {
		if !ok {
			continue
		}
		nv := nf.Normals[i]
		if math.Abs(nv.Z) < minNz {
			continue
		}
		g.p[i] = -nv.X / nv.Z
		g.q[i] = -nv.Y / nv.Z
		g.valid[i] = true
	}
	return g
}

// step returns the height increment between predecessor a and pixel b
// along one axis, or false when b has no gradient.
func step(grad []float64, valid []bool, a, b int) (float64, bool) {
	if !valid[b] {
		return 0, false
	}
	if valid[a] {
		return (grad[a] + grad[b]) / 2, true
	}
	return grad[b], true
}

// Integrate reconstructs heights from nf. The first row is integrated
// sequentially; columns are then independent and integrated in parallel
// bands. ctx is checked between phases and before each band.
func Integrate(ctx context.Context, nf *normals.Field, opts Options) (*Field, error) {
	opts = opts.withDefaults()
	w, h := nf.Width, nf.Height
	out := NewField(w, h)
	if w == 0 || h == 0 {
		return out, nil
	}

	g := computeGradients(nf, opts.MinNz)
	copy(out.Valid, g.valid)

	for x := 1; x < w; x++ {
		d, _ := step(g.p, g.valid, x-1, x)
		out.Heights[x] = out.Heights[x-1] + d
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bands := min(opts.Workers, w)
	bandWidth := (w + bands - 1) / bands

	eg, gctx := errgroup.WithContext(ctx)
	for x0 := 0; x0 < w; x0 += bandWidth {
		x1 := min(x0+bandWidth, w)
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for y := 1; y < h; y++ {
				row, prev := y*w, (y-1)*w
				for x := x0; x < x1; x++ {
					d, _ := step(g.q, g.valid, prev+x, row+x)
					out.Heights[row+x] = out.Heights[prev+x] + d
				}
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	for i := 0; i < opts.Refine; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		relax(out, g)
	}

	return out, nil
}

// relax performs one in-place Gauss-Seidel sweep of the Poisson equation
// over valid pixels, using only valid neighbours.
func relax(f *Field, g gradients) {
	w, h := f.Width, f.Height
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			if !g.valid[i] {
				continue
			}
			var sum float64
			n := 0
			if x > 0 && g.valid[i-1] {
				sum += f.Heights[i-1] + (g.p[i-1]+g.p[i])/2
				n++
			}
			if x < w-1 && g.valid[i+1] {
				sum += f.Heights[i+1] - (g.p[i]+g.p[i+1])/2
				n++
			}
			if y > 0 && g.valid[i-w] {
				sum += f.Heights[i-w] + (g.q[i-w]+g.q[i])/2
				n++
			}
			if y < h-1 && g.valid[i+w] {
				sum += f.Heights[i+w] - (g.q[i]+g.q[i+w])/2
				n++
			}
			if n > 0 {
				f.Heights[i] = sum / float64(n)
			}
		}
	}
}

// Range returns the minimum and maximum height over valid pixels. ok is
// false when there are none.
func (f *Field) Range() (lo, hi float64, ok bool) {
	vals := make([]float64, 0, len(f.Heights))
	for i, v := range f.Valid {
		if v {
			vals = append(vals, f.Heights[i])
		}
	}
	if len(vals) == 0 {
		return 0, 0, false
	}
	return floats.Min(vals), floats.Max(vals), true
}

// ToImage renders the field as a grayscale height map scaled so the lowest
// valid height is black and the highest white. Invalid pixels are fully
// transparent.
func (f *Field) ToImage() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	lo, hi, ok := f.Range()
	if !ok {
		return img
	}
	span := hi - lo
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			i := y*f.Width + x
			if !f.Valid[i] {
				continue
			}
			var v uint8
			if span > 0 {
				v = uint8(math.Round((f.Heights[i] - lo) / span * 255))
			}
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}
