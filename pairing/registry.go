// Package pairing binds controllers to copters, one to one, and keeps the
// control delegate of every pair running.
//
// Registry and Coordinator keep their state on the loop: every method must
// be called from a function running on it.
package pairing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
	"github.com/mikehamer/crazypilot/control"
	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/event"
	"github.com/mikehamer/crazypilot/gamepad"
	"github.com/mikehamer/crazypilot/loop"
)

type pairingError uint8

func (e pairingError) Error() string {
	return fmt.Sprintf("pairing: %s", pairingErrorString[e])
}

const (
	ErrorAlreadyPaired pairingError = iota
	ErrorPairNotFound
)

var pairingErrorString = map[pairingError]string{
	ErrorAlreadyPaired: "controller or copter is already paired",
	ErrorPairNotFound:  "pair not found",
}

type Pair struct {
	ID         uuid.UUID
	Controller *gamepad.Controller
	Copter     *copter.Copter
	Delegate   *control.Delegate
	Created    time.Time
}

type Registry struct {
	ctx    context.Context
	loop   *loop.Loop
	logger hclog.Logger
	scheme control.Scheme

	pairs        []*Pair
	byID         map[uuid.UUID]*Pair
	byCopter     map[string]*Pair
	byController map[string]*Pair

	registered   event.Dispatcher[*Pair]
	unregistered event.Dispatcher[*Pair]
}

// NewRegistry creates a registry whose pairs start with scheme. ctx bounds
// the copter connections the registry starts.
func NewRegistry(ctx context.Context, l *loop.Loop, scheme control.Scheme, logger hclog.Logger) (*Registry, error) {
	if !scheme.Supported() {
		return nil, control.ErrorUnsupportedScheme
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Registry{
		ctx:          ctx,
		loop:         l,
		logger:       logger,
		scheme:       scheme,
		byID:         make(map[uuid.UUID]*Pair),
		byCopter:     make(map[string]*Pair),
		byController: make(map[string]*Pair),
	}, nil
}

func (r *Registry) OnRegistered(fn func(*Pair)) *event.Subscription {
	return r.registered.Subscribe(fn)
}

func (r *Registry) OnUnregistered(fn func(*Pair)) *event.Subscription {
	return r.unregistered.Subscribe(fn)
}

// Register pairs controller with c, starts forwarding control input and
// asks the copter to connect.
func (r *Registry) Register(controller *gamepad.Controller, c *copter.Copter) (*Pair, error) {
	if _, ok := r.byController[controller.Key()]; ok {
		return nil, ErrorAlreadyPaired
	}
	if _, ok := r.byCopter[c.Key()]; ok {
		return nil, ErrorAlreadyPaired
	}

	delegate, err := control.NewDelegate(r.loop, controller, c, r.scheme, r.logger.Named("control").With("copter", c.Key()))
	if err != nil {
		return nil, err
	}

	p := &Pair{
		ID:         uuid.New(),
		Controller: controller,
		Copter:     c,
		Delegate:   delegate,
		Created:    time.Now(),
	}

	r.pairs = append(r.pairs, p)
	r.byID[p.ID] = p
	r.byCopter[c.Key()] = p
	r.byController[controller.Key()] = p

	delegate.Activate()
	c.Connect(r.ctx)

	r.logger.Info("paired", "pair", p.ID, "controller", controller.Key(), "copter", c.Key())
	r.registered.Emit(p)
	return p, nil
}

// Unregister tears down the pair owning key, which may be a controller
// key, a copter key or a pair ID.
func (r *Registry) Unregister(key string) (*Pair, error) {
	p, ok := r.lookup(key)
	if !ok {
		return nil, ErrorPairNotFound
	}
	r.unregister(p)
	return p, nil
}

func (r *Registry) lookup(key string) (*Pair, bool) {
	if p, ok := r.byController[key]; ok {
		return p, true
	}
	if p, ok := r.byCopter[key]; ok {
		return p, true
	}
	return r.ByID(key)
}

func (r *Registry) unregister(p *Pair) {
	p.Delegate.Deactivate()
	p.Copter.Disconnect()

	delete(r.byID, p.ID)
	delete(r.byCopter, p.Copter.Key())
	delete(r.byController, p.Controller.Key())
	for i, other := range r.pairs {
		if other == p {
			r.pairs = append(r.pairs[:i:i], r.pairs[i+1:]...)
			break
		}
	}

	r.logger.Info("unpaired", "pair", p.ID, "controller", p.Controller.Key(), "copter", p.Copter.Key())
	r.unregistered.Emit(p)
}

func (r *Registry) ByCopter(key string) (*Pair, bool) {
	p, ok := r.byCopter[key]
	return p, ok
}

func (r *Registry) ByController(key string) (*Pair, bool) {
	p, ok := r.byController[key]
	return p, ok
}

func (r *Registry) ByID(id string) (*Pair, bool) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, false
	}
	p, ok := r.byID[parsed]
	return p, ok
}

// Pairs returns the current pairs, oldest first.
func (r *Registry) Pairs() []*Pair {
	return append([]*Pair(nil), r.pairs...)
}

func (r *Registry) Scheme() control.Scheme {
	return r.scheme
}

// SetScheme changes the scheme of new pairs and of every current pair.
func (r *Registry) SetScheme(scheme control.Scheme) error {
	if !scheme.Supported() {
		return control.ErrorUnsupportedScheme
	}
	r.scheme = scheme
	for _, p := range r.pairs {
		p.Delegate.SetScheme(scheme)
	}
	return nil
}

// Close tears down every pair.
func (r *Registry) Close() {
	for _, p := range r.Pairs() {
		r.unregister(p)
	}
}
