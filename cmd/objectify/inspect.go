package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/urfave/cli/v2"

	"github.com/Faultbox/objectify/pkg/mesh"
)

func inspectAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: objectify inspect %s", c.Command.ArgsUsage)
	}
	path := c.Args().First()

	var (
		m   *mesh.Mesh
		err error
	)
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		m, err = parseBundle(path)
	} else {
		m, err = parseOBJFile(path)
	}
	if err != nil {
		return err
	}

	out := c.App.Writer
	fmt.Fprintf(out, "File:       %s\n", path)
	fmt.Fprintf(out, "Vertices:   %d\n", len(m.Vertices))
	fmt.Fprintf(out, "TexCoords:  %d\n", len(m.TexCoords))
	fmt.Fprintf(out, "Faces:      %d\n", len(m.Faces))
	if m.MaterialLib != "" {
		fmt.Fprintf(out, "Materials:  %s (%s)\n", m.MaterialLib, m.Material)
	}
	if lo, hi, ok := zRange(m); ok {
		fmt.Fprintf(out, "Z range:    [%.4g, %.4g]\n", lo, hi)
	}
	return nil
}

func parseOBJFile(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return mesh.ParseOBJ(f)
}

// maxOBJBytes bounds how much of an archived OBJ is read.
var maxOBJBytes uint64 = 1 << 30

// parseLimited parses r and fails instead of truncating when r holds more
// than maxOBJBytes.
func parseLimited(r io.Reader, name string) (*mesh.Mesh, error) {
	lr := &io.LimitedReader{R: r, N: int64(maxOBJBytes) + 1}
	m, err := mesh.ParseOBJ(lr)
	if err != nil {
		return nil, err
	}
	if lr.N <= 0 {
		return nil, fmt.Errorf("%s: exceeds the %d byte limit", name, maxOBJBytes)
	}
	return m, nil
}

// parseBundle parses the first .obj member of a bundle archive.
func parseBundle(path string) (*mesh.Mesh, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer zr.Close()

	for _, f := range zr.File {
		if !strings.EqualFold(filepath.Ext(f.Name), ".obj") {
			continue
		}
		if f.UncompressedSize64 > maxOBJBytes {
			return nil, fmt.Errorf("%s: %d bytes exceeds the %d byte limit", f.Name, f.UncompressedSize64, maxOBJBytes)
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer rc.Close()
		return parseLimited(rc, f.Name)
	}
	return nil, errors.New("archive contains no .obj file")
}

func zRange(m *mesh.Mesh) (lo, hi float64, ok bool) {
	for i, v := range m.Vertices {
		if i == 0 || v[2] < lo {
			lo = v[2]
		}
		if i == 0 || v[2] > hi {
			hi = v[2]
		}
	}
	return lo, hi, len(m.Vertices) > 0
}
