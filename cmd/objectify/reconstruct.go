package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/objectify/internal/config"
	"github.com/Faultbox/objectify/internal/imageio"
	"github.com/Faultbox/objectify/internal/logger"
	"github.com/Faultbox/objectify/internal/pipeline"
	"github.com/Faultbox/objectify/pkg/mesh"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	return config.Load(c.String(flagConfig))
}

func reconstructAction(c *cli.Context) error {
	if c.NArg() < 3 {
		return fmt.Errorf("need at least 3 captures, got %d\nUsage: %s", c.NArg(), c.Command.UsageText)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg.ApplyOverrides(config.Overrides{
		Debug:    c.Bool(flagDebug),
		LogFile:  c.String(flagLogFile),
		Workers:  c.Int(flagWorkers),
		Blur:     c.Float64(flagBlur),
		Refine:   c.Int(flagRefine),
		OutDir:   c.String(flagOut),
		Name:     c.String(flagName),
		NoBundle: c.Bool(flagNoBundle),
	})

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.LogFile); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	paths := c.Args().Slice()
	for _, p := range paths {
		if !imageio.Supported(p) {
			return fmt.Errorf("unsupported capture %s", p)
		}
	}
	start := time.Now()
	captures, err := imageio.LoadAll(paths)
	if err != nil {
		return err
	}
	in := pipeline.Input{Captures: captures}
	if tex := c.String(flagTexture); tex != "" {
		if in.Texture, err = imageio.Load(tex); err != nil {
			return err
		}
		logger.Debug("texture loaded", zap.String("path", tex))
	}
	logger.Info("captures loaded", zap.Int("count", len(captures)), zap.Duration("elapsed", time.Since(start)))
	logger.Sugar.Debugf("reconstruction settings: %+v", cfg.Reconstruction)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, runErr := pipeline.Run(ctx, cfg, in)
	switch {
	case errors.Is(runErr, mesh.ErrInsufficientGeometry):
		logger.Warn("no mesh produced, writing maps only", zap.Error(runErr))
	case runErr != nil:
		return runErr
	}

	written, err := pipeline.WriteOutputs(res, cfg)
	if err != nil {
		logger.Error("writing outputs failed", zap.String("dir", cfg.Output.Dir), zap.Error(err))
		return err
	}

	out := c.App.Writer
	st := res.Stats
	fmt.Fprintf(out, "Session:  %s\n", res.Session)
	fmt.Fprintf(out, "Size:     %dx%d, %d lights\n", st.Width, st.Height, st.Lights)
	fmt.Fprintf(out, "Normals:  %d valid, mean albedo %.4f\n", st.ValidNormals, st.MeanAlbedo)
	fmt.Fprintf(out, "Heights:  %d valid, range [%.4g, %.4g]\n", st.ValidHeights, st.MinHeight, st.MaxHeight)
	fmt.Fprintf(out, "Mesh:     %d vertices, %d faces\n", st.Vertices, st.Faces)
	fmt.Fprintf(out, "Elapsed:  %v\n", st.Elapsed.Round(time.Millisecond))
	for _, p := range written {
		fmt.Fprintf(out, "  wrote %s\n", p)
	}

	return runErr
}
