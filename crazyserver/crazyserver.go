// Package crazyserver wires discovery, pairing and control together and
// exposes them over HTTP.
package crazyserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/cache"
	"github.com/mikehamer/crazypilot/config"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/crazyflie"
	"github.com/mikehamer/crazypilot/crazyradio"
	"github.com/mikehamer/crazypilot/discovery"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/loop"
	"github.com/mikehamer/crazypilot/pairing"
	"github.com/pkg/errors"
)

const (
	shutdownTimeout = 5 * time.Second
	closeTimeout    = 2 * time.Second
)

// InputDriver streams frames from an attached controller, e.g. a
// *gamepad.USB.
type InputDriver interface {
	Attach(controller *gamepad.Controller) error
	Detach(controller *gamepad.Controller)
}

// Deps are the hardware facing parts of the server.
type Deps struct {
	Finder  discovery.CopterFinder
	Driver  copter.Driver
	Devices discovery.DeviceLister
	// Input may be nil when frames are published by other means.
	Input InputDriver
	// Closers run last on Close, in order.
	Closers []func()
}

type Server struct {
	deps   Deps
	listen string
	logger hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loop   *loop.Loop

	copters     *discovery.CopterDiscovery
	controllers *discovery.ControllerDiscovery
	registry    *pairing.Registry
	coordinator *pairing.Coordinator
	sockets     *hub
	router      *mux.Router

	subscriptions []*event.Subscription
	started       atomic.Bool
	closeOnce     sync.Once
}

// Open builds a server on the attached Crazyradio and USB controllers.
func Open(cfg *config.Config, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	radioOptions, err := cfg.RadioOptions(logger.Named("crazyradio"))
	if err != nil {
		return nil, err
	}
	radio, err := crazyradio.Open(radioOptions)
	if err != nil {
		return nil, errors.Wrap(err, "crazyserver: opening radio")
	}

	c, err := cache.New(cfg.Cache.Dir)
	if err != nil {
		radio.Close()
		return nil, err
	}

	driver := crazyflie.NewDriver(radio, crazyflie.Options{Logger: logger.Named("crazyflie"), Cache: c}, crazyflie.DefaultTelemetryPeriod)
	usb := gamepad.NewUSB(gamepad.DecodeXbox360, logger.Named("gamepad"))

	s, err := New(cfg, Deps{
		Finder:  radio,
		Driver:  driver,
		Devices: usb,
		Input:   usb,
		Closers: []func(){usb.Close, radio.Close},
	}, logger)
	if err != nil {
		usb.Close()
		radio.Close()
		return nil, err
	}
	return s, nil
}

func New(cfg *config.Config, deps Deps, logger hclog.Logger) (*Server, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	signatures, err := cfg.Signatures()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		deps:    deps,
		listen:  cfg.Server.Listen,
		logger:  logger.Named("server"),
		ctx:     ctx,
		cancel:  cancel,
		loop:    loop.New(logger.Named("loop")),
		sockets: newHub(cfg.Server.TelemetryRate, logger.Named("sockets")),
	}

	s.copters = discovery.NewCopterDiscovery(s.loop, deps.Finder, s.newCopter,
		time.Duration(cfg.Discovery.CopterDelay), logger.Named("discovery.copters"))
	s.controllers = discovery.NewControllerDiscovery(s.loop, deps.Devices, signatures,
		time.Duration(cfg.Discovery.ControllerPeriod), logger.Named("discovery.controllers"))

	s.registry, err = pairing.NewRegistry(ctx, s.loop, cfg.Control.Scheme, logger.Named("pairing"))
	if err != nil {
		cancel()
		return nil, err
	}
	s.coordinator = pairing.NewCoordinator(s.registry, s.copters, pairing.Options{
		ReparkSurvivor: cfg.Pairing.ReparkSurvivor,
		Logger:         logger.Named("pairing"),
	})

	s.subscriptions = []*event.Subscription{
		s.copters.OnDetected(s.coordinator.OnCopterDetected),
		s.copters.OnLost(s.coordinator.OnCopterLost),
		s.copters.OnError(s.scanFailed),
		s.controllers.OnDetected(s.controllerDetected),
		s.controllers.OnLost(s.controllerLost),
		s.controllers.OnError(s.scanFailed),
	}

	s.router = s.routes(cfg.Server.Static)
	return s, nil
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs the loop and both discoveries. It returns immediately.
func (s *Server) Start() {
	if s.started.Swap(true) {
		return
	}
	go func() {
		if err := s.loop.Run(s.ctx); err != nil && err != context.Canceled {
			s.logger.Error("loop stopped", "error", err)
		}
	}()
	s.controllers.Start()
	s.copters.Start()
	s.logger.Info("discovery started")
}

// Run starts the server and serves HTTP until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.Start()
	defer s.Close()

	httpServer := &http.Server{Addr: s.listen, Handler: s.router}
	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.ListenAndServe()
	}()
	s.logger.Info("listening", "address", s.listen)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Wrap(httpServer.Shutdown(shutdownCtx), "crazyserver: shutting down")
	case err := <-errs:
		return errors.Wrap(err, "crazyserver: serving")
	}
}

// Close tears down every pair, stops discovery and releases the hardware.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.copters.Close()
		s.controllers.Stop()

		done := make(chan struct{})
		teardown := func() {
			defer close(done)
			for _, subscription := range s.subscriptions {
				subscription.Close()
			}
			s.registry.Close()
		}
		if err := s.loop.Post(teardown); err == nil {
			if s.started.Load() {
				select {
				case <-done:
				case <-time.After(closeTimeout):
					s.logger.Warn("teardown timed out")
				}
			} else {
				s.loop.RunPending()
			}
		}

		s.cancel()
		s.loop.Close()
		s.sockets.Close()

		for _, closer := range s.deps.Closers {
			closer()
		}
		s.logger.Info("closed")
	})
}

// ApplyConfig applies the settings that can change while running.
func (s *Server) ApplyConfig(cfg *config.Config) {
	signatures, err := cfg.Signatures()
	if err != nil {
		s.logger.Error("ignoring config", "error", err)
		return
	}
	s.controllers.SetSignatures(signatures)
	s.sockets.SetRate(cfg.Server.TelemetryRate)

	s.loop.Post(func() {
		if s.registry.Scheme() == cfg.Control.Scheme {
			return
		}
		if err := s.registry.SetScheme(cfg.Control.Scheme); err != nil {
			s.logger.Error("scheme not applied", "scheme", cfg.Control.Scheme, "error", err)
			return
		}
		s.logger.Info("scheme applied to all pairs", "scheme", cfg.Control.Scheme)
	})
}

func (s *Server) newCopter(link crazyradio.Link) *copter.Copter {
	c := copter.New(link, s.deps.Driver, s.logger.Named("copter"))
	c.OnTelemetry(s.sockets.Publish)
	return c
}

func (s *Server) controllerDetected(controller *gamepad.Controller) {
	if s.deps.Input != nil {
		if err := s.deps.Input.Attach(controller); err != nil {
			s.logger.Error("controller input unavailable", "controller", controller.Key(), "error", err)
			return
		}
	}
	s.coordinator.OnControllerDetected(controller)
}

func (s *Server) controllerLost(controller *gamepad.Controller) {
	s.coordinator.OnControllerLost(controller)
	if s.deps.Input != nil {
		s.deps.Input.Detach(controller)
	}
}

func (s *Server) scanFailed(err error) {
	s.logger.Error("discovery failed", "error", err)
}

// onLoop runs fn on the loop for a request.
func (s *Server) onLoop(r *http.Request, fn func()) error {
	return s.loop.Do(r.Context(), fn)
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, httpStatus int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(httpStatus)

	json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, httpStatus int, msg string) {
	respondJSON(w, httpStatus, errorResponse{Error: msg})
}
