// Package mesh turns a height field into a textured triangle mesh and
// serializes it as OBJ/MTL.
package mesh

import (
	"errors"
	"fmt"
	"image"

	"github.com/Faultbox/objectify/pkg/heights"
)

// DefaultMaterial is the material name referenced by exported faces.
const DefaultMaterial = "picture"

// ErrInsufficientGeometry is returned when a height field has no complete
// 2x2 block of valid pixels to triangulate.
var ErrInsufficientGeometry = errors.New("insufficient geometry")

// Face is a triangle. V indexes Vertices and T indexes TexCoords, both
// zero-based.
type Face struct {
	V [3]int
	T [3]int
}

// Mesh holds one vertex and one texture coordinate per source pixel,
// the triangles over valid quads, and the texture they reference.
type Mesh struct {
	Vertices    [][3]float64
	TexCoords   [][2]float64
	Faces       []Face
	Material    string
	MaterialLib string
	Texture     image.Image
}

// Options control the mesh scale.
type Options struct {
	PixelScale  float64 // x/y distance between neighbouring pixels; <= 0 means 1
	HeightScale float64 // multiplier applied to heights; 0 means 1
	Material    string  // empty means DefaultMaterial
}

func (o Options) withDefaults() Options {
	if o.PixelScale <= 0 {
		o.PixelScale = 1
	}
	if o.HeightScale == 0 {
		o.HeightScale = 1
	}
	if o.Material == "" {
		o.Material = DefaultMaterial
	}
	return o
}

// Build triangulates hf. Every pixel becomes a vertex at
// (x, y, height) with texture coordinate (x/(W-1), 1-y/(H-1)); each quad of
// four valid pixels becomes two triangles (top-left, bottom-left, top-right)
// and (top-right, bottom-left, bottom-right). Quads touching an invalid
// pixel are skipped.
func Build(hf *heights.Field, texture image.Image, opts Options) (*Mesh, error) {
	w, h := hf.Width, hf.Height
	if w < 2 || h < 2 {
		return nil, fmt.Errorf("%w: %dx%d height field", ErrInsufficientGeometry, w, h)
	}
	if n := hf.ValidCount(); n < 4 {
		return nil, fmt.Errorf("%w: %d valid pixels", ErrInsufficientGeometry, n)
	}
	opts = opts.withDefaults()

	m := &Mesh{
		Vertices:  make([][3]float64, 0, w*h),
		TexCoords: make([][2]float64, 0, w*h),
		Material:  opts.Material,
		Texture:   texture,
	}

	uStep := 1 / float64(w-1)
	vStep := 1 / float64(h-1)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			m.Vertices = append(m.Vertices, [3]float64{
				float64(x) * opts.PixelScale,
				float64(y) * opts.PixelScale,
				hf.At(x, y) * opts.HeightScale,
			})
			m.TexCoords = append(m.TexCoords, [2]float64{
				float64(x) * uStep,
				1 - float64(y)*vStep,
			})
		}
	}

	for y := 0; y < h-1; y++ {
		for x := 0; x < w-1; x++ {
			tl := y*w + x
			tr := tl + 1
			bl := tl + w
			br := bl + 1
			if !hf.Valid[tl] || !hf.Valid[tr] || !hf.Valid[bl] || !hf.Valid[br] {
				continue
			}
			m.Faces = append(m.Faces,
				Face{V: [3]int{tl, bl, tr}, T: [3]int{tl, bl, tr}},
				Face{V: [3]int{tr, bl, br}, T: [3]int{tr, bl, br}},
			)
		}
	}

	if len(m.Faces) == 0 {
		return nil, fmt.Errorf("%w: no 2x2 block of valid pixels", ErrInsufficientGeometry)
	}
	return m, nil
}
