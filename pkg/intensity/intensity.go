// Package intensity converts captured bitmaps into grayscale sample grids.
package intensity

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/Faultbox/objectify/pkg/linalg"
)

// Image is a W x H grid of grayscale intensities in [0, 1], row-major.
// A value of 0 means no data (shadow or background).
type Image struct {
	Width  int
	Height int
	Pix    []float64
}

// New returns a zero-filled intensity grid.
func New(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]float64, width*height),
	}
}

// At returns the intensity at (x, y).
func (im *Image) At(x, y int) float64 {
	return im.Pix[y*im.Width+x]
}

// Set sets the intensity at (x, y).
func (im *Image) Set(x, y int, v float64) {
	im.Pix[y*im.Width+x] = v
}

// Gray converts an 8-bit RGB triple to intensity as (R+G+B)/3/255.
// Pure black maps to 0 and is treated downstream as missing data.
func Gray(r, g, b uint8) float64 {
	if r == 0 && g == 0 && b == 0 {
		return 0
	}
	return (float64(r) + float64(g) + float64(b)) / 3 / 255
}

// FromImage converts any image to an intensity grid. The grid origin is the
// top-left corner of img's bounds.
func FromImage(img image.Image) *Image {
	b := img.Bounds()
	out := New(b.Dx(), b.Dy())

	switch src := img.(type) {
	case *image.NRGBA:
		for y := 0; y < out.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < out.Width; x++ {
				i := x * 4
				out.Pix[y*out.Width+x] = Gray(row[i], row[i+1], row[i+2])
			}
		}
	case *image.Gray:
		for y := 0; y < out.Height; y++ {
			row := src.Pix[src.PixOffset(b.Min.X, b.Min.Y+y):]
			for x := 0; x < out.Width; x++ {
				v := row[x]
				out.Pix[y*out.Width+x] = Gray(v, v, v)
			}
		}
	default:
		for y := 0; y < out.Height; y++ {
			for x := 0; x < out.Width; x++ {
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				out.Pix[y*out.Width+x] = Gray(c.R, c.G, c.B)
			}
		}
	}

	return out
}

// Options control capture preprocessing.
type Options struct {
	// BlurSigma applies a Gaussian blur before conversion; 0 disables it.
	BlurSigma float64
	// MaxDimension downscales captures so neither side exceeds it; 0 disables it.
	MaxDimension int
}

// Preprocess applies the optional blur and downscale to a capture.
func Preprocess(img image.Image, opts Options) image.Image {
	if opts.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > opts.MaxDimension || b.Dy() > opts.MaxDimension {
			img = imaging.Fit(img, opts.MaxDimension, opts.MaxDimension, imaging.Lanczos)
		}
	}
	if opts.BlurSigma > 0 {
		img = imaging.Blur(img, opts.BlurSigma)
	}
	return img
}

// PreprocessAll applies Preprocess to every capture. The result can be
// handed to both FromImages and Average with zero Options so the work is
// done once.
func PreprocessAll(imgs []image.Image, opts Options) []image.Image {
	out := make([]image.Image, len(imgs))
	for i, img := range imgs {
		out[i] = Preprocess(img, opts)
	}
	return out
}

// FromImages preprocesses and converts a capture set. All captures must
// share the same dimensions after preprocessing.
func FromImages(imgs []image.Image, opts Options) ([]*Image, error) {
	out := make([]*Image, len(imgs))
	for i, img := range imgs {
		out[i] = FromImage(Preprocess(img, opts))
		if i > 0 && (out[i].Width != out[0].Width || out[i].Height != out[0].Height) {
			return nil, fmt.Errorf("%w: capture %d is %dx%d, capture 0 is %dx%d",
				linalg.ErrDimensionMismatch, i, out[i].Width, out[i].Height, out[0].Width, out[0].Height)
		}
	}
	return out, nil
}

// Average returns the per-pixel mean of the captures, rounded to the
// nearest 8-bit value. It is the mesh texture when no explicit texture is
// supplied. Captures are used as given and must share bounds sizes; it
// returns nil for an empty set.
func Average(imgs []image.Image) *image.NRGBA {
	if len(imgs) == 0 {
		return nil
	}

	nrgba := make([]*image.NRGBA, len(imgs))
	for i, img := range imgs {
		nrgba[i] = imaging.Clone(img)
	}

	b := nrgba[0].Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	n := len(nrgba)
	for i := 0; i < len(dst.Pix); i += 4 {
		var r, g, bl int
		for _, src := range nrgba {
			if i+2 >= len(src.Pix) {
				continue
			}
			r += int(src.Pix[i])
			g += int(src.Pix[i+1])
			bl += int(src.Pix[i+2])
		}
		dst.Pix[i] = roundDiv(r, n)
		dst.Pix[i+1] = roundDiv(g, n)
		dst.Pix[i+2] = roundDiv(bl, n)
		dst.Pix[i+3] = 255
	}
	return dst
}

func roundDiv(sum, n int) uint8 {
	return uint8((sum + n/2) / n)
}
