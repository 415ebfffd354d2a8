// Package copter models a flying device reachable over the radio: its
// identity, its connection lifecycle and the telemetry it reports.
package copter

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/event"
)

const (
	MaxThrust = 60000
	MinThrust = 10001
	MaxPitch  = 45
	MaxRoll   = 45
	MaxYaw    = 360
)

type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Session is an established connection to one copter.
type Session interface {
	// SetpointSend queues an attitude setpoint without waiting for delivery.
	SetpointSend(roll, pitch, yaw float64, thrust uint16) error
	// Subscribe starts streaming a telemetry channel to fn.
	Subscribe(channel Channel, fn func(map[string]float64)) error
	Close() error
}

// Driver opens sessions. Connect returns once the copter has answered.
type Driver interface {
	Connect(ctx context.Context, link crazyradio.Link) (Session, error)
}

// Copter is safe for concurrent use.
type Copter struct {
	link   crazyradio.Link
	driver Driver
	logger hclog.Logger

	lock       sync.Mutex
	state      State
	session    Session
	generation uint64
	cancel     context.CancelFunc
	stabilizer *Stabilizer

	connected    event.Dispatcher[*Copter]
	disconnected event.Dispatcher[*Copter]
	telemetry    event.Dispatcher[Telemetry]
}

func New(link crazyradio.Link, driver Driver, logger hclog.Logger) *Copter {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Copter{
		link:   link,
		driver: driver,
		logger: logger.With("copter", link.String()),
		state:  StateDisconnected,
	}
}

// Key is the copter's radio URI.
func (c *Copter) Key() string {
	return c.link.String()
}

func (c *Copter) Link() crazyradio.Link {
	return c.link
}

func (c *Copter) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.state
}

// Stabilizer returns the last reported attitude, if any.
func (c *Copter) Stabilizer() (Stabilizer, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.stabilizer == nil {
		return Stabilizer{}, false
	}
	return *c.stabilizer, true
}

// Connect starts connecting in the background. It does nothing unless the
// copter is disconnected.
func (c *Copter) Connect(ctx context.Context) {
	c.lock.Lock()
	if c.state != StateDisconnected {
		c.lock.Unlock()
		return
	}
	c.state = StateConnecting
	c.generation++
	generation := c.generation
	ctx, c.cancel = context.WithCancel(ctx)
	c.lock.Unlock()

	c.logger.Info("connecting")
	go c.connect(ctx, generation)
}

func (c *Copter) connect(ctx context.Context, generation uint64) {
	session, err := c.driver.Connect(ctx, c.link)

	c.lock.Lock()
	if generation != c.generation {
		// Disconnect was called while we were connecting
		c.lock.Unlock()
		if session != nil {
			session.Close()
		}
		return
	}
	if err != nil {
		c.state = StateDisconnected
		c.cancel()
		c.lock.Unlock()
		c.logger.Warn("connection failed", "error", err)
		return
	}
	c.state = StateConnected
	c.session = session
	c.lock.Unlock()

	c.logger.Info("connected")

	for _, channel := range Channels {
		channel := channel
		err := session.Subscribe(channel, func(data map[string]float64) {
			c.handleTelemetry(generation, channel, data)
		})
		if err != nil {
			c.logger.Warn("telemetry subscription failed", "channel", channel, "error", err)
		}
	}

	c.lock.Lock()
	current := generation == c.generation
	c.lock.Unlock()
	if current {
		c.connected.Emit(c)
	}
}

func (c *Copter) handleTelemetry(generation uint64, channel Channel, data map[string]float64) {
	c.lock.Lock()
	if generation != c.generation {
		c.lock.Unlock()
		return
	}
	if channel == ChannelStabilizer {
		s := stabilizerFrom(data)
		c.stabilizer = &s
	}
	c.lock.Unlock()

	c.telemetry.Emit(Telemetry{
		Copter:  c,
		Channel: channel,
		Data:    data,
		Time:    time.Now(),
	})
}

// Setpoint forwards an attitude command. Without a session the command is
// dropped.
func (c *Copter) Setpoint(roll, pitch, yaw float64, thrust uint16) error {
	c.lock.Lock()
	session := c.session
	c.lock.Unlock()

	if session == nil {
		c.logger.Trace("setpoint dropped, no session")
		return nil
	}
	return session.SetpointSend(roll, pitch, yaw, thrust)
}

// Disconnect closes the session or abandons a connection attempt.
func (c *Copter) Disconnect() {
	c.lock.Lock()
	if c.state == StateDisconnected {
		c.lock.Unlock()
		return
	}
	wasConnected := c.state == StateConnected
	c.generation++
	c.cancel()
	session := c.session
	c.session = nil
	c.state = StateDisconnected
	c.lock.Unlock()

	if session != nil {
		if err := session.Close(); err != nil {
			c.logger.Warn("closing session failed", "error", err)
		}
	}
	c.logger.Info("disconnected")

	if wasConnected {
		c.disconnected.Emit(c)
	}
}

func (c *Copter) OnConnected(fn func(*Copter)) *event.Subscription {
	return c.connected.Subscribe(fn)
}

func (c *Copter) OnDisconnected(fn func(*Copter)) *event.Subscription {
	return c.disconnected.Subscribe(fn)
}

func (c *Copter) OnTelemetry(fn func(Telemetry)) *event.Subscription {
	return c.telemetry.Subscribe(fn)
}
