package mesh

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const objHeader = "# Created by Objectify"

// WriteOBJ writes m as Wavefront OBJ text. mtlFile, when non-empty, is
// referenced with an mtllib record. Face indices are 1-based and written
// as vertex/texcoord pairs.
func WriteOBJ(w io.Writer, m *Mesh, mtlFile string) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintln(bw, objHeader)
	if mtlFile != "" {
		fmt.Fprintf(bw, "mtllib %s\n", mtlFile)
	}

	for _, v := range m.Vertices {
		fmt.Fprintf(bw, "v %s %s %s\n", formatFloat(v[0]), formatFloat(v[1]), formatFloat(v[2]))
	}
	for _, t := range m.TexCoords {
		fmt.Fprintf(bw, "vt %s %s\n", formatFloat(t[0]), formatFloat(t[1]))
	}

	material := m.Material
	if material == "" {
		material = DefaultMaterial
	}
	fmt.Fprintf(bw, "usemtl %s\n", material)

	for _, f := range m.Faces {
		fmt.Fprintf(bw, "f %d/%d %d/%d %d/%d\n",
			f.V[0]+1, f.T[0]+1,
			f.V[1]+1, f.T[1]+1,
			f.V[2]+1, f.T[2]+1)
	}

	return bw.Flush()
}

// WriteMTL writes a material library with a single diffuse texture.
func WriteMTL(w io.Writer, material, textureFile string) error {
	if material == "" {
		material = DefaultMaterial
	}
	_, err := fmt.Fprintf(w, "newmtl %s\nmap_Kd %s\n", material, textureFile)
	return err
}

// ParseOBJ reads the subset of OBJ produced by WriteOBJ: v, vt, f, usemtl
// and mtllib records. Polygons with more than three corners are split into
// a triangle fan. Negative (relative) indices are resolved. Unknown
// records are ignored.
func ParseOBJ(r io.Reader) (*Mesh, error) {
	m := &Mesh{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	line := 0
	for sc.Scan() {
		line++
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			vals, err := parseFloats(fields[1:], 3)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			m.Vertices = append(m.Vertices, [3]float64{vals[0], vals[1], vals[2]})
		case "vt":
			vals, err := parseFloats(fields[1:], 2)
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			m.TexCoords = append(m.TexCoords, [2]float64{vals[0], vals[1]})
		case "f":
			faces, err := parseFace(fields[1:], len(m.Vertices), len(m.TexCoords))
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			m.Faces = append(m.Faces, faces...)
		case "usemtl":
			if len(fields) > 1 {
				m.Material = fields[1]
			}
		case "mtllib":
			if len(fields) > 1 {
				m.MaterialLib = fields[1]
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading obj: %w", err)
	}
	return m, nil
}

func parseFloats(fields []string, n int) ([]float64, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d values, got %d", n, len(fields))
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", fields[i])
		}
		out[i] = v
	}
	return out, nil
}

// parseFace parses the corners of an f record and fans them into triangles.
// Corners without a texture coordinate reuse the vertex index.
func parseFace(fields []string, nv, nt int) ([]Face, error) {
	if len(fields) < 3 {
		return nil, fmt.Errorf("face has %d corners, need at least 3", len(fields))
	}

	vs := make([]int, len(fields))
	ts := make([]int, len(fields))
	for i, corner := range fields {
		parts := strings.Split(corner, "/")
		v, err := resolveIndex(parts[0], nv)
		if err != nil {
			return nil, fmt.Errorf("vertex index: %w", err)
		}
		vs[i] = v
		ts[i] = v
		if len(parts) > 1 && parts[1] != "" {
			t, err := resolveIndex(parts[1], nt)
			if err != nil {
				return nil, fmt.Errorf("texcoord index: %w", err)
			}
			ts[i] = t
		}
	}

	faces := make([]Face, 0, len(fields)-2)
	for i := 1; i+1 < len(fields); i++ {
		faces = append(faces, Face{
			V: [3]int{vs[0], vs[i], vs[i+1]},
			T: [3]int{ts[0], ts[i], ts[i+1]},
		})
	}
	return faces, nil
}

// resolveIndex converts a 1-based or negative OBJ index to zero-based.
func resolveIndex(s string, count int) (int, error) {
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q", s)
	}
	switch {
	case idx > 0 && idx <= count:
		return idx - 1, nil
	case idx < 0 && -idx <= count:
		return count + idx, nil
	default:
		return 0, fmt.Errorf("index %d out of range [1, %d]", idx, count)
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
