package crazyflie

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/crtpdevice"
	"github.com/pkg/errors"
)

const DefaultTelemetryPeriod = 100 * time.Millisecond

// TelemetryVariables are the log variables streamed for each channel.
var TelemetryVariables = map[copter.Channel][]string{
	copter.ChannelAccelerometer: {"acc.x", "acc.y", "acc.z"},
	copter.ChannelGyro:          {"gyro.x", "gyro.y", "gyro.z"},
	copter.ChannelMotor:         {"motor.m1", "motor.m2", "motor.m3", "motor.m4"},
	copter.ChannelStabilizer:    {"stabilizer.roll", "stabilizer.pitch", "stabilizer.yaw", "stabilizer.thrust"},
}

// datarateSetter is implemented by devices able to reach clients at
// different datarates, such as crazyradio.Radio.
type datarateSetter interface {
	ClientSetDatarate(channel uint8, address uint64, datarate crazyradio.Datarate)
}

// Driver connects copters over a single crtpdevice.
type Driver struct {
	device          crtpdevice.CrtpDevice
	options         Options
	telemetryPeriod time.Duration
}

func NewDriver(device crtpdevice.CrtpDevice, options Options, telemetryPeriod time.Duration) *Driver {
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	if telemetryPeriod <= 0 {
		telemetryPeriod = DefaultTelemetryPeriod
	}
	return &Driver{device, options, telemetryPeriod}
}

// Connect performs the handshake and loads the log TOC, so the returned
// session is ready for telemetry subscriptions.
func (d *Driver) Connect(ctx context.Context, link crazyradio.Link) (copter.Session, error) {
	if s, ok := d.device.(datarateSetter); ok {
		s.ClientSetDatarate(link.Channel, link.Address, link.Datarate)
	}

	options := d.options
	options.Logger = d.options.Logger.With("link", link.String())

	cf, err := Connect(ctx, d.device, link.Channel, link.Address, options)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting %s", link)
	}

	if err := cf.LogTOCGetList(); err != nil {
		cf.DisconnectImmediately()
		return nil, errors.Wrapf(err, "reading log TOC of %s", link)
	}

	// blocks left over from a previous connection would collide with ours
	if err := cf.LogBlockClearAll(); err != nil {
		options.Logger.Warn("clearing log blocks failed", "error", err)
	}

	return &session{cf: cf, period: d.telemetryPeriod}, nil
}

type session struct {
	cf     *Crazyflie
	period time.Duration

	lock   sync.Mutex
	blocks []uint8
}

func (s *session) SetpointSend(roll, pitch, yaw float64, thrust uint16) error {
	return s.cf.LegacySetpointSend(float32(roll), float32(pitch), float32(yaw), thrust)
}

func (s *session) Subscribe(channel copter.Channel, fn func(map[string]float64)) error {
	variables, ok := TelemetryVariables[channel]
	if !ok {
		return ErrorUnknownTelemetryChannel
	}

	blockid, err := s.cf.LogBlockAdd(variables, func(values map[string]float64) {
		fn(shortNames(values))
	})
	if err != nil {
		return err
	}

	s.lock.Lock()
	s.blocks = append(s.blocks, uint8(blockid))
	s.lock.Unlock()

	return s.cf.LogBlockStart(uint8(blockid), s.period)
}

// Close stops and frees the session's log blocks so the copter stops
// streaming, then disconnects once those requests are out. A copter that
// no longer answers is dropped straight away.
func (s *session) Close() error {
	s.lock.Lock()
	blocks := s.blocks
	s.blocks = nil
	s.lock.Unlock()

	if s.cf.Status() != StatusConnected {
		s.cf.DisconnectImmediately()
		return nil
	}

	var result error
	for _, blockid := range blocks {
		if err := s.cf.LogBlockStop(blockid); err != nil && result == nil {
			result = errors.Wrapf(err, "stopping log block %d", blockid)
		}
		if err := s.cf.LogBlockDelete(blockid); err != nil && result == nil {
			result = errors.Wrapf(err, "deleting log block %d", blockid)
		}
	}

	s.cf.DisconnectOnEmpty()
	return result
}

// shortNames drops the group prefix, stabilizer.roll becomes roll.
func shortNames(values map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for name, v := range values {
		if i := strings.LastIndex(name, "."); i >= 0 {
			name = name[i+1:]
		}
		out[name] = v
	}
	return out
}

func hclogCRC(crc uint32) hclog.Format {
	return hclog.Fmt("%08X", crc)
}
