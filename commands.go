package main

import (
	"github.com/urfave/cli"
)

var COMMANDS = []cli.Command{
	{
		Name:   "serve",
		Usage:  "Discover copters and controllers, pair them and serve the REST API",
		Action: serveCommand,
		Flags: []cli.Flag{
			cli.StringFlag{
				Name:  "listen, l",
				Usage: "Override the configured HTTP listen address",
			},
			cli.StringFlag{
				Name:  "static, s",
				Usage: "Optional static folder. Served on /static with index.html accessible on /",
			},
		},
	},
	{
		Name:   "scan",
		Usage:  "Scan once for copters and print their radio URIs",
		Action: scanCommand,
	},
	{
		Name:   "devices",
		Usage:  "List attached USB devices and whether they are recognised as controllers",
		Action: devicesCommand,
	},
	{
		Name:      "telemetry",
		Usage:     "Connect to one copter and print its telemetry",
		ArgsUsage: "<radio://index/channel/datarate/address>",
		Action:    telemetryCommand,
	},
	{
		Name:   "init",
		Usage:  "Write the default configuration to the configuration file",
		Action: initCommand,
		Flags: []cli.Flag{
			cli.BoolFlag{
				Name:  "force, f",
				Usage: "Overwrite an existing file",
			},
		},
	},
}
