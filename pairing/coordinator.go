package pairing

import (
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/gamepad"
)

// Starter restarts copter discovery, which pauses after each detection.
type Starter interface {
	Start()
}

type Options struct {
	// ReparkSurvivor returns the surviving side of a pair torn down by a
	// loss to the waiting slot instead of leaving it idle.
	ReparkSurvivor bool
	Logger         hclog.Logger
}

// Coordinator matches newly detected controllers and copters. At most one
// of each waits for a partner, and never both at once.
type Coordinator struct {
	registry  *Registry
	discovery Starter
	options   Options
	logger    hclog.Logger

	waitingCopter     *copter.Copter
	waitingController *gamepad.Controller
}

func NewCoordinator(registry *Registry, discovery Starter, options Options) *Coordinator {
	if options.Logger == nil {
		options.Logger = hclog.NewNullLogger()
	}
	return &Coordinator{
		registry:  registry,
		discovery: discovery,
		options:   options,
		logger:    options.Logger,
	}
}

// Waiting returns the hardware waiting for a partner.
func (co *Coordinator) Waiting() (*copter.Copter, *gamepad.Controller) {
	return co.waitingCopter, co.waitingController
}

func (co *Coordinator) OnCopterDetected(c *copter.Copter) {
	if co.waitingController != nil {
		controller := co.waitingController
		co.waitingController = nil
		co.pair(controller, c)
		return
	}
	if co.waitingCopter != nil {
		co.logger.Debug("replacing waiting copter", "old", co.waitingCopter.Key(), "new", c.Key())
	}
	co.waitingCopter = c
	co.logger.Info("copter waiting for a controller", "copter", c.Key())
}

func (co *Coordinator) OnControllerDetected(controller *gamepad.Controller) {
	if co.waitingCopter != nil {
		c := co.waitingCopter
		co.waitingCopter = nil
		co.pair(controller, c)
		return
	}
	if co.waitingController != nil {
		co.logger.Debug("replacing waiting controller", "old", co.waitingController.Key(), "new", controller.Key())
	}
	co.waitingController = controller
	co.logger.Info("controller waiting for a copter", "controller", controller.Key())
}

func (co *Coordinator) OnCopterLost(c *copter.Copter) {
	if co.waitingCopter != nil && co.waitingCopter.Key() == c.Key() {
		co.waitingCopter = nil
	}

	p, err := co.registry.Unregister(c.Key())
	if err != nil {
		return
	}
	co.logger.Info("copter lost, pair torn down", "pair", p.ID)

	if co.options.ReparkSurvivor {
		co.OnControllerDetected(p.Controller)
	}
	co.discovery.Start()
}

func (co *Coordinator) OnControllerLost(controller *gamepad.Controller) {
	if co.waitingController != nil && co.waitingController.Key() == controller.Key() {
		co.waitingController = nil
	}

	p, err := co.registry.Unregister(controller.Key())
	if err != nil {
		return
	}
	co.logger.Info("controller lost, pair torn down", "pair", p.ID)

	if co.options.ReparkSurvivor {
		co.OnCopterDetected(p.Copter)
	}
	co.discovery.Start()
}

// Unpair tears down a pair on request. Neither side waits afterwards; each
// pairs again once it is detected again.
func (co *Coordinator) Unpair(id string) (*Pair, error) {
	p, ok := co.registry.ByID(id)
	if !ok {
		return nil, ErrorPairNotFound
	}
	co.registry.unregister(p)
	co.discovery.Start()
	return p, nil
}

func (co *Coordinator) pair(controller *gamepad.Controller, c *copter.Copter) {
	if _, err := co.registry.Register(controller, c); err != nil {
		co.logger.Error("pairing refused", "controller", controller.Key(), "copter", c.Key(), "error", err)
		return
	}
	co.discovery.Start()
}
