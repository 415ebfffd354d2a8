package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mikehamer/crazypilot/cache"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/crazyflie"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func telemetryCommand(context *cli.Context) error {
	if context.NArg() != 1 {
		return cli.ShowCommandHelp(context, "telemetry")
	}
	link, err := crazyradio.ParseLink(context.Args().First())
	if err != nil {
		return err
	}

	options, err := cfg.RadioOptions(logger.Named("crazyradio"))
	if err != nil {
		return err
	}
	options.Index = link.Index

	radio, err := crazyradio.Open(options)
	if err != nil {
		return err
	}
	defer radio.Close()

	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	driver := crazyflie.NewDriver(radio, crazyflie.Options{Logger: logger.Named("crazyflie"), Cache: c}, crazyflie.DefaultTelemetryPeriod)
	session, err := driver.Connect(ctx, link)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s", link)
	}
	defer session.Close()

	for _, channel := range copter.Channels {
		channel := channel
		err := session.Subscribe(channel, func(data map[string]float64) {
			fmt.Printf("%-13s %s\n", channel, formatValues(data))
		})
		if err != nil {
			return errors.Wrapf(err, "subscribing to %s", channel)
		}
	}

	<-ctx.Done()
	return nil
}

func formatValues(data map[string]float64) string {
	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]string, len(names))
	for i, name := range names {
		fields[i] = fmt.Sprintf("%s=%.3f", name, data[name])
	}
	return strings.Join(fields, " ")
}
