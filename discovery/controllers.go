package discovery

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/hardware"
	"github.com/mikehamer/crazypilot/loop"
)

const DefaultControllerPeriod = 2000 * time.Millisecond

// DefaultSignatures recognises the Crazyradio adapter itself.
var DefaultSignatures = []gamepad.Signature{{Vendor: 6421, Product: 30583}}

type DeviceLister interface {
	ListDevices() ([]gamepad.Descriptor, error)
}

// ControllerDiscovery enumerates USB devices on a fixed period for as long
// as it runs. It never pauses itself.
type ControllerDiscovery struct {
	lister DeviceLister
	loop   *loop.Loop
	logger hclog.Logger
	period time.Duration

	// owned by the loop
	signatures []gamepad.Signature
	defaults   bool
	known      *hardware.Set[*gamepad.Controller]
	running    bool
	ticker     *time.Ticker
	halt       chan struct{}

	detected event.Dispatcher[*gamepad.Controller]
	lost     event.Dispatcher[*gamepad.Controller]
	failed   event.Dispatcher[error]
}

func NewControllerDiscovery(l *loop.Loop, lister DeviceLister, signatures []gamepad.Signature, period time.Duration, logger hclog.Logger) *ControllerDiscovery {
	if period <= 0 {
		period = DefaultControllerPeriod
	}
	defaults := len(signatures) == 0
	if defaults {
		signatures = DefaultSignatures
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ControllerDiscovery{
		lister:     lister,
		loop:       l,
		logger:     logger,
		period:     period,
		signatures: signatures,
		defaults:   defaults,
		known:      hardware.NewSet[*gamepad.Controller](),
	}
}

func (d *ControllerDiscovery) OnDetected(fn func(*gamepad.Controller)) *event.Subscription {
	return d.detected.Subscribe(fn)
}

func (d *ControllerDiscovery) OnLost(fn func(*gamepad.Controller)) *event.Subscription {
	return d.lost.Subscribe(fn)
}

func (d *ControllerDiscovery) OnError(fn func(error)) *event.Subscription {
	return d.failed.Subscribe(fn)
}

// Start scans immediately and then once per period. Idempotent.
func (d *ControllerDiscovery) Start() {
	d.loop.Post(d.start)
}

// Stop halts the ticker. Idempotent.
func (d *ControllerDiscovery) Stop() {
	d.loop.Post(d.stop)
}

// SetSignatures replaces the recognised controllers from the next scan on.
func (d *ControllerDiscovery) SetSignatures(signatures []gamepad.Signature) {
	d.loop.Post(func() {
		d.defaults = len(signatures) == 0
		if d.defaults {
			signatures = DefaultSignatures
		}
		d.signatures = signatures
		if d.running {
			d.warnDefaults()
		}
	})
}

// Running must be called on the loop.
func (d *ControllerDiscovery) Running() bool {
	return d.running
}

// Known must be called on the loop.
func (d *ControllerDiscovery) Known() []*gamepad.Controller {
	return d.known.Items()
}

func (d *ControllerDiscovery) start() {
	if d.running {
		return
	}
	d.logger.Debug("starting")
	d.running = true
	d.warnDefaults()
	d.ticker = time.NewTicker(d.period)
	d.halt = make(chan struct{})

	go func(ticker *time.Ticker, halt chan struct{}) {
		for {
			select {
			case <-ticker.C:
				d.loop.Post(d.scan)
			case <-halt:
				return
			}
		}
	}(d.ticker, d.halt)

	d.scan()
}

func (d *ControllerDiscovery) stop() {
	if !d.running {
		return
	}
	d.logger.Debug("stopping")
	d.running = false
	d.ticker.Stop()
	close(d.halt)
}

// warnDefaults flags a run that can only ever find the radio dongle itself,
// which has no inputs to read.
func (d *ControllerDiscovery) warnDefaults() {
	if d.defaults {
		d.logger.Warn("no controller signatures configured, only the default signature is active", "signatures", d.signatures)
	}
}

func (d *ControllerDiscovery) matches(descriptor gamepad.Descriptor) bool {
	for _, s := range d.signatures {
		if s.Matches(descriptor) {
			return true
		}
	}
	return false
}

func (d *ControllerDiscovery) scan() {
	if !d.running {
		return
	}

	descriptors, err := d.lister.ListDevices()
	if err != nil {
		d.logger.Warn("enumeration failed", "error", err)
		d.failed.Emit(&ScanError{Transport: "usb", Err: err})
		return
	}

	var matching []gamepad.Descriptor
	for _, descriptor := range descriptors {
		if d.matches(descriptor) {
			matching = append(matching, descriptor)
		}
	}

	detected, lost := hardware.Reconcile(d.known, matching, gamepad.Descriptor.Key, gamepad.NewController)
	report(d.logger, "controller", detected, lost, &d.detected, &d.lost)
}
