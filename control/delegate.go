package control

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/loop"
)

// Source produces input frames, e.g. a *gamepad.Controller.
type Source interface {
	OnFrame(fn func(gamepad.Frame)) *event.Subscription
}

// Target receives setpoints, e.g. a *copter.Copter.
type Target interface {
	Setpoint(roll, pitch, yaw float64, thrust uint16) error
}

// Delegate forwards every frame of one controller to one copter. Frames
// are mapped on the loop; all methods must be called on the loop.
type Delegate struct {
	source Source
	target Target
	loop   *loop.Loop
	logger hclog.Logger

	scheme       Scheme
	subscription *event.Subscription
	last         Setpoint
	frames       uint64
}

func NewDelegate(l *loop.Loop, source Source, target Target, scheme Scheme, logger hclog.Logger) (*Delegate, error) {
	if !scheme.Supported() {
		return nil, ErrorUnsupportedScheme
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Delegate{
		source: source,
		target: target,
		loop:   l,
		logger: logger,
		scheme: scheme,
	}, nil
}

func (d *Delegate) Scheme() Scheme {
	return d.scheme
}

// SetScheme switches the mapping used for subsequent frames.
func (d *Delegate) SetScheme(scheme Scheme) error {
	if !scheme.Supported() {
		return ErrorUnsupportedScheme
	}
	if scheme != d.scheme {
		d.logger.Info("scheme changed", "from", d.scheme, "to", scheme)
		d.scheme = scheme
	}
	return nil
}

func (d *Delegate) Active() bool {
	return d.subscription != nil
}

// Last returns the most recent setpoint sent and how many frames were
// forwarded.
func (d *Delegate) Last() (Setpoint, uint64) {
	return d.last, d.frames
}

// Activate subscribes to the source. Idempotent.
func (d *Delegate) Activate() {
	if d.subscription != nil {
		return
	}

	var subscription *event.Subscription
	subscription = d.source.OnFrame(func(frame gamepad.Frame) {
		d.loop.Post(func() {
			if d.subscription != subscription {
				return // deactivated after the frame arrived
			}
			d.forward(frame)
		})
	})
	d.subscription = subscription
	d.logger.Debug("activated", "scheme", d.scheme)
}

// Deactivate releases the subscription. No frame is forwarded afterwards.
func (d *Delegate) Deactivate() {
	if d.subscription == nil {
		return
	}
	d.subscription.Close()
	d.subscription = nil
	d.logger.Debug("deactivated")
}

func (d *Delegate) forward(frame gamepad.Frame) {
	setpoint, err := Map(d.scheme, frame)
	if err != nil {
		d.logger.Warn("mapping failed", "scheme", d.scheme, "error", err)
		return
	}

	d.last = setpoint
	d.frames++

	if err := d.target.Setpoint(setpoint.Roll, setpoint.Pitch, setpoint.Yaw, setpoint.Thrust); err != nil {
		d.logger.Trace("setpoint not sent", "error", err)
	}
}
