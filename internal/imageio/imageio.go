// Package imageio decodes capture files and encodes reconstruction outputs.
package imageio

import (
	"bufio"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/HugoSmits86/nativewebp"
	"github.com/ftrvxmtrx/tga"
	"github.com/lmittmann/ppm"
	"go.uber.org/multierr"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// DefaultJPEGQuality matches the quality used for exported textures.
const DefaultJPEGQuality = 90

type decodeFunc func(io.Reader) (image.Image, error)

// decoders maps lower-case file extensions to decoders. TGA has no magic
// number, so formats are chosen by extension rather than sniffed.
var decoders = map[string]decodeFunc{
	".png":  png.Decode,
	".jpg":  jpeg.Decode,
	".jpeg": jpeg.Decode,
	".bmp":  bmp.Decode,
	".tif":  tiff.Decode,
	".tiff": tiff.Decode,
	".webp": webp.Decode,
	".tga":  tga.Decode,
	".ppm":  ppm.Decode,
}

// Supported reports whether path has a decodable extension.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Decode decodes r using the decoder registered for ext.
func Decode(r io.Reader, ext string) (image.Image, error) {
	dec, ok := decoders[strings.ToLower(ext)]
	if !ok {
		return nil, fmt.Errorf("unsupported image format %q", ext)
	}
	return dec(bufio.NewReader(r))
}

// Load reads and decodes an image file.
func Load(path string) (img image.Image, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	img, err = Decode(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return img, nil
}

// LoadAll loads every path in order.
func LoadAll(paths []string) ([]image.Image, error) {
	imgs := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := Load(p)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, img)
	}
	return imgs, nil
}

// Format is an output encoding.
type Format string

// Output formats.
const (
	PNG  Format = "png"
	JPEG Format = "jpg"
	WebP Format = "webp"
)

// ParseFormat validates a format name. "jpeg" is accepted as JPEG.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "png":
		return PNG, nil
	case "jpg", "jpeg":
		return JPEG, nil
	case "webp":
		return WebP, nil
	default:
		return "", fmt.Errorf("unknown image format %q", s)
	}
}

// Ext returns the file extension for f without the dot.
func (f Format) Ext() string {
	return string(f)
}

// Encoder returns an encoder for f. quality only affects JPEG; values
// outside 1..100 use DefaultJPEGQuality. WebP output is lossless.
func Encoder(f Format, quality int) func(io.Writer, image.Image) error {
	switch f {
	case JPEG:
		if quality < 1 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
		}
	case WebP:
		return func(w io.Writer, img image.Image) error {
			return nativewebp.Encode(w, img, nil)
		}
	default:
		return png.Encode
	}
}

// Save encodes img into path, creating parent directories.
func Save(path string, img image.Image, f Format, quality int) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	bw := bufio.NewWriter(file)
	if err := Encoder(f, quality)(bw, img); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return bw.Flush()
}
