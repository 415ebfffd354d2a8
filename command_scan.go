package main

import (
	"fmt"

	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/urfave/cli"
)

func scanCommand(context *cli.Context) error {
	options, err := cfg.RadioOptions(logger.Named("crazyradio"))
	if err != nil {
		return err
	}

	radio, err := crazyradio.Open(options)
	if err != nil {
		return err
	}
	defer radio.Close()

	ctx, cancel := signalContext()
	defer cancel()

	links, err := radio.FindCopters(ctx)
	if err != nil {
		return err
	}
	if len(links) == 0 {
		fmt.Println("No copters found")
	}
	for _, link := range links {
		fmt.Println(link)
	}
	return nil
}

func devicesCommand(context *cli.Context) error {
	signatures, err := cfg.Signatures()
	if err != nil {
		return err
	}

	usb := gamepad.NewUSB(nil, logger.Named("gamepad"))
	defer usb.Close()

	devices, err := usb.ListDevices()
	if err != nil {
		return err
	}

	for _, d := range devices {
		marker := " "
		for _, s := range signatures {
			if s.Matches(d) {
				marker = "*"
				break
			}
		}
		fmt.Printf("%s %s\n", marker, d)
	}
	return nil
}
