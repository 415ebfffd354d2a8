package main

import (
	"github.com/mikehamer/crazypilot/config"
	"github.com/mikehamer/crazypilot/crazyserver"
	"github.com/urfave/cli"
)

func serveCommand(context *cli.Context) error {
	if listen := context.String("listen"); listen != "" {
		cfg.Server.Listen = listen
	}
	if static := context.String("static"); static != "" {
		cfg.Server.Static = static
	}

	server, err := crazyserver.Open(cfg, logger)
	if err != nil {
		return err
	}

	watcher, err := config.NewWatcher(context.GlobalString("config"), logger.Named("config"))
	if err != nil {
		server.Close()
		return err
	}
	watcher.OnChange(server.ApplyConfig)
	if err := watcher.Start(); err != nil {
		logger.Warn("config hot reload disabled", "error", err)
	}
	defer watcher.Stop()

	ctx, cancel := signalContext()
	defer cancel()

	return server.Run(ctx)
}
