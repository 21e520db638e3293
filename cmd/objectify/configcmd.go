package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func configAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if c.NArg() == 0 {
		data, err := cfg.Marshal()
		if err != nil {
			return err
		}
		_, err = c.App.Writer.Write(data)
		return err
	}

	path := c.Args().First()
	if err := cfg.SaveTo(path); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "wrote %s\n", path)
	return nil
}
