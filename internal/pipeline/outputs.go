package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/Faultbox/objectify/internal/config"
	"github.com/Faultbox/objectify/internal/imageio"
	"github.com/Faultbox/objectify/internal/logger"
	"github.com/Faultbox/objectify/pkg/mesh"
)

// Output file base names for the two maps.
const (
	NormalMapName = "normals"
	HeightMapName = "heights"
)

// WriteOutputs writes the maps and, when a mesh exists, the OBJ bundle
// into cfg.Output.Dir. It returns the written paths in order.
func WriteOutputs(res *Result, cfg *config.Config) ([]string, error) {
	if res == nil || res.Normals == nil || res.Heights == nil {
		return nil, errors.New("nothing to write")
	}
	mapFormat, err := cfg.MapFormat()
	if err != nil {
		return nil, err
	}
	texFormat, err := cfg.TextureFormat()
	if err != nil {
		return nil, err
	}

	log := logger.Named("pipeline").With(zap.String("session", res.Session))
	dir := cfg.Output.Dir
	var paths []string

	maps := []struct {
		name string
		save func(string) error
	}{
		{NormalMapName, func(p string) error { return imageio.Save(p, res.Normals.ToImage(), mapFormat, 0) }},
		{HeightMapName, func(p string) error { return imageio.Save(p, res.Heights.ToImage(), mapFormat, 0) }},
	}
	for _, m := range maps {
		p := filepath.Join(dir, m.name+"."+mapFormat.Ext())
		if err := m.save(p); err != nil {
			return paths, fmt.Errorf("writing %s map: %w", m.name, err)
		}
		paths = append(paths, p)
	}

	if res.Mesh == nil {
		log.Info("outputs written", zap.Strings("files", paths))
		return paths, nil
	}

	b := mesh.Bundle{
		Name:       cfg.Output.Name,
		TextureExt: texFormat.Ext(),
		Encode:     imageio.Encoder(texFormat, cfg.Output.JPEGQuality),
	}
	files, err := b.WriteDir(dir, res.Mesh)
	if err != nil {
		return paths, fmt.Errorf("writing mesh: %w", err)
	}
	paths = append(paths, files...)

	if cfg.Output.Bundle {
		zp := filepath.Join(dir, b.ZipName())
		if err := b.WriteZipFile(zp, res.Mesh); err != nil {
			return paths, fmt.Errorf("writing bundle: %w", err)
		}
		paths = append(paths, zp)
	}

	log.Info("outputs written", zap.Strings("files", paths))
	return paths, nil
}
