package mesh

import (
	"bytes"
	"errors"
	"image"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zip"

	"github.com/Faultbox/objectify/pkg/heights"
)

func validField(w, h int) *heights.Field {
	hf := heights.NewField(w, h)
	for i := range hf.Valid {
		hf.Valid[i] = true
		hf.Heights[i] = float64(i%w) * 0.5
	}
	return hf
}

func TestBuildCountsFullyValid(t *testing.T) {
	const w, h = 5, 4
	m, err := Build(validField(w, h), nil, Options{})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(m.Vertices) != w*h {
		t.Errorf("vertices = %d, want %d", len(m.Vertices), w*h)
	}
	if len(m.TexCoords) != w*h {
		t.Errorf("texcoords = %d, want %d", len(m.TexCoords), w*h)
	}
	if want := 2 * (w - 1) * (h - 1); len(m.Faces) != want {
		t.Errorf("faces = %d, want %d", len(m.Faces), want)
	}
}

func TestBuildInvalidRow(t *testing.T) {
	const w, h = 6, 5
	full, err := Build(validField(w, h), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}

	hf := validField(w, h)
	for x := 0; x < w; x++ {
		hf.Valid[x] = false // first row
	}
	m, err := Build(hf, nil, Options{})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(m.Vertices) != len(full.Vertices) {
		t.Errorf("vertices = %d, want %d", len(m.Vertices), len(full.Vertices))
	}
	if got, want := len(full.Faces)-len(m.Faces), 2*(w-1); got != want {
		t.Errorf("faces dropped = %d, want %d", got, want)
	}
	for _, f := range m.Faces {
		for _, v := range f.V {
			if v < w {
				t.Fatalf("face %v references invalid row", f)
			}
		}
	}
}

func TestBuildVertexAndTexCoord(t *testing.T) {
	hf := validField(3, 3)
	hf.Heights[4] = 2
	m, err := Build(hf, nil, Options{PixelScale: 2, HeightScale: 3})
	if err != nil {
		t.Fatal(err)
	}
	if got, want := m.Vertices[4], [3]float64{2, 2, 6}; got != want {
		t.Errorf("vertex 4 = %v, want %v", got, want)
	}
	if got, want := m.TexCoords[0], [2]float64{0, 1}; got != want {
		t.Errorf("texcoord 0 = %v, want %v", got, want)
	}
	if got, want := m.TexCoords[8], [2]float64{1, 0}; got != want {
		t.Errorf("texcoord 8 = %v, want %v", got, want)
	}
	// First quad: (tl, bl, tr), (tr, bl, br).
	want := []Face{
		{V: [3]int{0, 3, 1}, T: [3]int{0, 3, 1}},
		{V: [3]int{1, 3, 4}, T: [3]int{1, 3, 4}},
	}
	if diff := cmp.Diff(want, m.Faces[:2]); diff != "" {
		t.Errorf("first quad faces mismatch (-want +got):\n%s", diff)
	}
	if m.Material != DefaultMaterial {
		t.Errorf("Material = %q, want %q", m.Material, DefaultMaterial)
	}
}

func TestBuildInsufficientGeometry(t *testing.T) {
	tests := []struct {
		name string
		hf   *heights.Field
	}{
		{"single column", validField(1, 5)},
		{"three valid", func() *heights.Field {
			hf := heights.NewField(3, 3)
			hf.Valid[0], hf.Valid[1], hf.Valid[3] = true, true, true
			return hf
		}()},
		{"no full quad", func() *heights.Field {
			hf := heights.NewField(3, 3)
			hf.Valid[0], hf.Valid[2], hf.Valid[6], hf.Valid[8] = true, true, true, true
			return hf
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Build(tt.hf, nil, Options{}); !errors.Is(err, ErrInsufficientGeometry) {
				t.Errorf("Build() error = %v, want ErrInsufficientGeometry", err)
			}
		})
	}
}

func TestOBJRoundTrip(t *testing.T) {
	hf := validField(4, 3)
	hf.Valid[5] = false
	m, err := Build(hf, nil, Options{PixelScale: 0.1})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := WriteOBJ(&buf, m, "model.mtl"); err != nil {
		t.Fatalf("WriteOBJ() error: %v", err)
	}

	parsed, err := ParseOBJ(&buf)
	if err != nil {
		t.Fatalf("ParseOBJ() error: %v", err)
	}
	if len(parsed.Vertices) != len(m.Vertices) {
		t.Errorf("vertices = %d, want %d", len(parsed.Vertices), len(m.Vertices))
	}
	if diff := cmp.Diff(m.Faces, parsed.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(m.Vertices, parsed.Vertices); diff != "" {
		t.Errorf("vertices mismatch (-want +got):\n%s", diff)
	}
	if parsed.Material != DefaultMaterial || parsed.MaterialLib != "model.mtl" {
		t.Errorf("material = %q/%q", parsed.Material, parsed.MaterialLib)
	}
}

func TestWriteOBJFormat(t *testing.T) {
	m := &Mesh{
		Vertices:  [][3]float64{{0, 0, 0}, {1, 0, 0.5}, {0, 1, 0}},
		TexCoords: [][2]float64{{0, 1}, {1, 1}, {0, 0}},
		Faces:     []Face{{V: [3]int{0, 2, 1}, T: [3]int{0, 2, 1}}},
	}
	var buf bytes.Buffer
	if err := WriteOBJ(&buf, m, "m.mtl"); err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{
		"# Created by Objectify",
		"mtllib m.mtl",
		"v 0 0 0",
		"v 1 0 0.5",
		"v 0 1 0",
		"vt 0 1",
		"vt 1 1",
		"vt 0 0",
		"usemtl picture",
		"f 1/1 3/3 2/2",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("WriteOBJ() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOBJPolygonAndRelative(t *testing.T) {
	src := `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
f -4//1 -3//2 -2//3
`
	m, err := ParseOBJ(strings.NewReader(src))
	if err != nil {
		t.Fatalf("ParseOBJ() error: %v", err)
	}
	want := []Face{
		{V: [3]int{0, 1, 2}, T: [3]int{0, 1, 2}},
		{V: [3]int{0, 2, 3}, T: [3]int{0, 2, 3}},
		{V: [3]int{0, 1, 2}, T: [3]int{0, 1, 2}},
	}
	if diff := cmp.Diff(want, m.Faces); diff != "" {
		t.Errorf("faces mismatch (-want +got):\n%s", diff)
	}
}

func TestParseOBJErrors(t *testing.T) {
	tests := map[string]string{
		"bad number":    "v 1 x 3\n",
		"short vertex":  "v 1 2\n",
		"out of range":  "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2 4\n",
		"two corners":   "v 0 0 0\nv 1 0 0\nf 1 2\n",
		"bad texcoord":  "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1/9 2 3\n",
		"zero is index": "v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n",
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseOBJ(strings.NewReader(src)); err == nil {
				t.Error("ParseOBJ() should fail")
			}
		})
	}
}

func TestWriteMTL(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteMTL(&buf, "", "objectify_model.jpg"); err != nil {
		t.Fatal(err)
	}
	if want := "newmtl picture\nmap_Kd objectify_model.jpg\n"; buf.String() != want {
		t.Errorf("WriteMTL() = %q, want %q", buf.String(), want)
	}
}

func TestBundleZip(t *testing.T) {
	m, err := Build(validField(3, 3), image.NewNRGBA(image.Rect(0, 0, 3, 3)), Options{})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := (Bundle{}).WriteZip(&buf, m); err != nil {
		t.Fatalf("WriteZip() error: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("zip.NewReader() error: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	want := []string{"objectify_model.obj", "objectify_model.mtl", "objectify_model.jpg"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Fatalf("archive members mismatch (-want +got):\n%s", diff)
	}

	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseOBJ(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Faces) != len(m.Faces) {
		t.Errorf("archived faces = %d, want %d", len(parsed.Faces), len(m.Faces))
	}
}

func TestBundleWriteDir(t *testing.T) {
	m, err := Build(validField(2, 2), image.NewNRGBA(image.Rect(0, 0, 2, 2)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	paths, err := Bundle{Name: "scan", TextureExt: "png"}.WriteDir(dir, m)
	if err != nil {
		t.Fatalf("WriteDir() error: %v", err)
	}
	want := []string{
		filepath.Join(dir, "scan.obj"),
		filepath.Join(dir, "scan.mtl"),
		filepath.Join(dir, "scan.png"),
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Errorf("paths mismatch (-want +got):\n%s", diff)
	}
}

func TestBundleNeedsTexture(t *testing.T) {
	m, err := Build(validField(2, 2), nil, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := (Bundle{}).WriteZip(io.Discard, m); err == nil {
		t.Error("WriteZip() without texture should fail")
	}
}
