package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/config"
	"github.com/urfave/cli"
)

var (
	cfg    *config.Config
	logger hclog.Logger
)

func main() {
	app := cli.NewApp()
	app.Name = "crazypilot"
	app.Usage = "Pair game controllers with Crazyflie copters and fly them"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Value: config.DefaultPath,
			Usage: "Configuration file",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "Override the configured log level (trace, debug, info, warn, error)",
		},
	}
	app.Before = setup
	app.Commands = COMMANDS

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads the configuration and builds the root logger for every
// command.
func setup(context *cli.Context) error {
	var err error
	cfg, err = config.Load(context.GlobalString("config"))
	if err != nil {
		return err
	}

	level := cfg.LogLevel()
	if override := context.GlobalString("log-level"); override != "" {
		level = hclog.LevelFromString(override)
		if level == hclog.NoLevel {
			return fmt.Errorf("unknown log level %q", override)
		}
	}

	logger = hclog.New(&hclog.LoggerOptions{
		Name:       "crazypilot",
		Level:      level,
		JSONFormat: cfg.Log.JSON,
	})
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
