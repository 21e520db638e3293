package mesh

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zip"
	"go.uber.org/multierr"
)

// DefaultBundleName is the base name of exported bundle files.
const DefaultBundleName = "objectify_model"

// TextureEncoder writes a texture image in a specific format.
type TextureEncoder func(w io.Writer, img image.Image) error

// Bundle describes the three files of an exported mesh: geometry,
// material library and texture.
type Bundle struct {
	Name       string         // base file name; empty means DefaultBundleName
	TextureExt string         // texture extension without dot; empty means "jpg"
	Encode     TextureEncoder // nil means JPEG at quality 90
}

func (b Bundle) withDefaults() Bundle {
	if b.Name == "" {
		b.Name = DefaultBundleName
	}
	if b.TextureExt == "" {
		b.TextureExt = "jpg"
	}
	if b.Encode == nil {
		b.Encode = func(w io.Writer, img image.Image) error {
			return jpeg.Encode(w, img, &jpeg.Options{Quality: 90})
		}
	}
	return b
}

// OBJName returns the geometry file name.
func (b Bundle) OBJName() string { return b.withDefaults().Name + ".obj" }

// MTLName returns the material library file name.
func (b Bundle) MTLName() string { return b.withDefaults().Name + ".mtl" }

// TextureName returns the texture file name.
func (b Bundle) TextureName() string {
	b = b.withDefaults()
	return b.Name + "." + b.TextureExt
}

// ZipName returns the archive file name.
func (b Bundle) ZipName() string { return b.withDefaults().Name + ".zip" }

// bundleFile is one rendered member of a bundle.
type bundleFile struct {
	name string
	data []byte
}

func (b Bundle) render(m *Mesh) ([]bundleFile, error) {
	if m.Texture == nil {
		return nil, errors.New("mesh has no texture")
	}
	b = b.withDefaults()

	var obj, mtl, tex bytes.Buffer
	if err := WriteOBJ(&obj, m, b.MTLName()); err != nil {
		return nil, fmt.Errorf("writing obj: %w", err)
	}
	if err := WriteMTL(&mtl, m.Material, b.TextureName()); err != nil {
		return nil, fmt.Errorf("writing mtl: %w", err)
	}
	if err := b.Encode(&tex, m.Texture); err != nil {
		return nil, fmt.Errorf("encoding texture: %w", err)
	}

	return []bundleFile{
		{b.OBJName(), obj.Bytes()},
		{b.MTLName(), mtl.Bytes()},
		{b.TextureName(), tex.Bytes()},
	}, nil
}

// WriteDir writes the OBJ, MTL and texture files into dir and returns
// their paths.
func (b Bundle) WriteDir(dir string, m *Mesh) ([]string, error) {
	files, err := b.render(m)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	paths := make([]string, 0, len(files))
	for _, f := range files {
		p := filepath.Join(dir, f.name)
		if err := os.WriteFile(p, f.data, 0644); err != nil {
			return nil, fmt.Errorf("writing %s: %w", f.name, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// WriteZip writes the three bundle files into a single zip archive.
func (b Bundle) WriteZip(w io.Writer, m *Mesh) error {
	files, err := b.render(m)
	if err != nil {
		return err
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.Create(f.name)
		if err != nil {
			return multierr.Combine(fmt.Errorf("adding %s: %w", f.name, err), zw.Close())
		}
		if _, err := fw.Write(f.data); err != nil {
			return multierr.Combine(fmt.Errorf("writing %s: %w", f.name, err), zw.Close())
		}
	}
	return zw.Close()
}

// WriteZipFile creates path and writes the archive into it.
func (b Bundle) WriteZipFile(path string, m *Mesh) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	return b.WriteZip(f, m)
}
