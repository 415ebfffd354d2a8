package main

import (
	"fmt"
	"os"

	"github.com/mikehamer/crazypilot/config"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/urfave/cli"
)

func initCommand(context *cli.Context) error {
	path, err := homedir.Expand(context.GlobalString("config"))
	if err != nil {
		return err
	}

	if _, err := os.Stat(path); err == nil && !context.Bool("force") {
		return fmt.Errorf("%s already exists, use --force to overwrite it", path)
	}

	if err := config.Save(path, config.Default()); err != nil {
		return err
	}
	fmt.Println("Wrote", path)
	return nil
}
