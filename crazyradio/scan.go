package crazyradio

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/crtp"
)

func hclogHex(address uint64) hclog.Format {
	return hclog.Fmt("%010X", address)
}

// FindCopters sweeps every channel at each configured datarate and returns a
// link for each channel on which a copter acknowledged a ping. The sweep
// holds the radio, so registered clients pause until it returns.
func (cr *Radio) FindCopters(ctx context.Context) ([]Link, error) {
	if cr.stopped() {
		return nil, ErrorClosed
	}

	var links []Link
	for _, datarate := range cr.options.ScanDatarates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		channels, err := cr.scanDatarate(datarate)
		if err != nil {
			return nil, err
		}

		for _, channel := range channels {
			links = append(links, Link{
				Index:    cr.options.Index,
				Channel:  channel,
				Datarate: datarate,
				Address:  cr.options.ScanAddress,
			})
		}
	}

	cr.logger.Debug("scan complete", "found", len(links))
	return links, nil
}

func (cr *Radio) scanDatarate(datarate Datarate) ([]uint8, error) {
	cr.device.Lock()
	defer cr.device.Unlock()

	if err := cr.device.SetDatarate(datarate); err != nil {
		return nil, err
	}
	if err := cr.device.SetAddress(cr.options.ScanAddress); err != nil {
		return nil, err
	}
	return cr.device.ScanChannels(0, MaxChannel, crtp.Ping)
}
