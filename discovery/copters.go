// Package discovery repeatedly scans for copters and controllers and
// reports the hardware that appeared or disappeared since the last scan.
//
// Both components keep their state on a loop.Loop. Their Start and Stop
// methods may be called from any goroutine; they post to the loop.
package discovery

import (
	"context"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/hardware"
	"github.com/mikehamer/crazypilot/loop"
)

const DefaultCopterDelay = 2000 * time.Millisecond

type CopterFinder interface {
	FindCopters(ctx context.Context) ([]crazyradio.Link, error)
}

// CopterDiscovery scans until it finds at least one new copter, then
// stops. Callers restart it once they have dealt with what was found.
type CopterDiscovery struct {
	finder    CopterFinder
	newCopter func(crazyradio.Link) *copter.Copter
	loop      *loop.Loop
	logger    hclog.Logger
	delay     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	// owned by the loop
	known    *hardware.Set[*copter.Copter]
	scanning bool
	inFlight bool
	timer    *time.Timer

	detected event.Dispatcher[*copter.Copter]
	lost     event.Dispatcher[*copter.Copter]
	failed   event.Dispatcher[error]
}

// NewCopterDiscovery builds a discovery that creates copters with newCopter
// on first sighting. A zero delay selects DefaultCopterDelay.
func NewCopterDiscovery(l *loop.Loop, finder CopterFinder, newCopter func(crazyradio.Link) *copter.Copter, delay time.Duration, logger hclog.Logger) *CopterDiscovery {
	if delay <= 0 {
		delay = DefaultCopterDelay
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &CopterDiscovery{
		finder:    finder,
		newCopter: newCopter,
		loop:      l,
		logger:    logger,
		delay:     delay,
		ctx:       ctx,
		cancel:    cancel,
		known:     hardware.NewSet[*copter.Copter](),
	}
}

func (d *CopterDiscovery) OnDetected(fn func(*copter.Copter)) *event.Subscription {
	return d.detected.Subscribe(fn)
}

func (d *CopterDiscovery) OnLost(fn func(*copter.Copter)) *event.Subscription {
	return d.lost.Subscribe(fn)
}

func (d *CopterDiscovery) OnError(fn func(error)) *event.Subscription {
	return d.failed.Subscribe(fn)
}

// Start begins scanning. It does nothing if already scanning.
func (d *CopterDiscovery) Start() {
	d.loop.Post(d.start)
}

// Stop prevents the next cycle. A scan already running is not cancelled;
// its results are still reported.
func (d *CopterDiscovery) Stop() {
	d.loop.Post(d.stop)
}

// Close cancels any running scan. The discovery cannot be restarted.
func (d *CopterDiscovery) Close() {
	d.cancel()
	d.loop.Post(d.stop)
}

// Scanning must be called on the loop.
func (d *CopterDiscovery) Scanning() bool {
	return d.scanning
}

// Known returns the known copters in discovery order. It must be called on
// the loop.
func (d *CopterDiscovery) Known() []*copter.Copter {
	return d.known.Items()
}

func (d *CopterDiscovery) start() {
	if d.scanning {
		return
	}
	d.logger.Debug("starting")
	d.scanning = true
	d.scan()
}

func (d *CopterDiscovery) stop() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if !d.scanning {
		return
	}
	d.logger.Debug("stopping")
	d.scanning = false
}

func (d *CopterDiscovery) scan() {
	if d.inFlight {
		return // the running cycle schedules the next one
	}
	d.inFlight = true

	go func() {
		links, err := d.finder.FindCopters(d.ctx)
		d.loop.Post(func() { d.complete(links, err) })
	}()
}

func (d *CopterDiscovery) tick() {
	d.timer = nil
	if d.scanning {
		d.scan()
	}
}

func (d *CopterDiscovery) complete(links []crazyradio.Link, err error) {
	d.inFlight = false

	if err != nil {
		d.stop()
		if d.ctx.Err() != nil {
			return // closed
		}
		d.logger.Warn("scan failed", "error", err)
		d.failed.Emit(&ScanError{Transport: "radio", Err: err})
		return
	}

	found := d.diff(links)

	if !d.scanning {
		return
	}
	if found > 0 {
		d.stop()
		return
	}
	d.timer = time.AfterFunc(d.delay, func() { d.loop.Post(d.tick) })
}

// diff reconciles the known set with one scan result and returns how many
// copters were new.
func (d *CopterDiscovery) diff(links []crazyradio.Link) int {
	detected, lost := hardware.Reconcile(d.known, links, crazyradio.Link.String, d.newCopter)
	report(d.logger, "copter", detected, lost, &d.detected, &d.lost)
	return len(detected)
}
