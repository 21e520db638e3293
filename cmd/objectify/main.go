// objectify reconstructs a textured 3D surface from photographs taken
// under known light directions.
package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

const (
	flagConfig   = "config"
	flagOut      = "out"
	flagName     = "name"
	flagWorkers  = "workers"
	flagBlur     = "blur"
	flagRefine   = "refine"
	flagTexture  = "texture"
	flagNoBundle = "no-bundle"
	flagDebug    = "debug"
	flagLogFile  = "log-file"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "objectify",
		Usage: "photometric stereo reconstruction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "path to objectify.yaml (default: ./objectify.yaml, then the user config dir)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "reconstruct",
				Aliases:   []string{"r"},
				Usage:     "build normal map, height map and mesh from captures",
				UsageText: "objectify reconstruct [options] <capture> <capture> <capture> [...]",
				Description: "Captures are matched to the configured lights in order. " +
					"Supported inputs: png, jpg, bmp, tif, webp, tga, ppm.",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: flagOut, Aliases: []string{"o"}, Usage: "output directory"},
					&cli.StringFlag{Name: flagName, Usage: "base name of the mesh bundle files"},
					&cli.IntFlag{Name: flagWorkers, Aliases: []string{"j"}, Usage: "parallel workers"},
					&cli.Float64Flag{Name: flagBlur, Usage: "Gaussian pre-blur sigma in pixels"},
					&cli.IntFlag{Name: flagRefine, Usage: "height relaxation sweeps after path integration"},
					&cli.StringFlag{Name: flagTexture, Aliases: []string{"t"}, Usage: "texture image (default: mean of the captures)"},
					&cli.BoolFlag{Name: flagNoBundle, Usage: "skip the zip archive"},
					&cli.BoolFlag{Name: flagDebug, Usage: "enable debug logging"},
					&cli.StringFlag{Name: flagLogFile, Usage: "also log to this rotating file"},
				},
				Action: reconstructAction,
			},
			{
				Name:      "inspect",
				Aliases:   []string{"i"},
				Usage:     "print statistics of an exported .obj or bundle .zip",
				ArgsUsage: "<file.obj|file.zip>",
				Action:    inspectAction,
			},
			{
				Name:      "config",
				Usage:     "print the effective configuration, or write it to a file",
				ArgsUsage: "[output.yaml]",
				Action:    configAction,
			},
		},
	}
}
