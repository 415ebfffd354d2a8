// Package gamepad models input controllers attached over USB: their
// identity, enumeration, and the input frames they produce.
package gamepad

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mikehamer/crazypilot/event"
)

type gamepadError uint8

func (e gamepadError) Error() string {
	return fmt.Sprintf("gamepad: %s", gamepadErrorString[e])
}

const (
	ErrorDeviceNotFound gamepadError = iota
	ErrorNoInputEndpoint
	ErrorInvalidSignature
)

var gamepadErrorString = map[gamepadError]string{
	ErrorDeviceNotFound:   "device not found",
	ErrorNoInputEndpoint:  "device has no interrupt input endpoint",
	ErrorInvalidSignature: "signature must be vendor:product in hex",
}

// AxisRange is the magnitude of a fully deflected stick axis.
const AxisRange = 128

// Descriptor identifies one attached USB device. Bus and address keep
// identical controllers apart.
type Descriptor struct {
	Bus     int    `json:"bus"`
	Address int    `json:"address"`
	Vendor  uint16 `json:"vendor"`
	Product uint16 `json:"product"`
}

func (d Descriptor) Key() string {
	return fmt.Sprintf("%04x:%04x@%d.%d", d.Vendor, d.Product, d.Bus, d.Address)
}

func (d Descriptor) String() string {
	return d.Key()
}

// Signature is a vendor/product pair recognised as a controller.
type Signature struct {
	Vendor  uint16
	Product uint16
}

func (s Signature) Matches(d Descriptor) bool {
	return s.Vendor == d.Vendor && s.Product == d.Product
}

func (s Signature) String() string {
	return fmt.Sprintf("%04x:%04x", s.Vendor, s.Product)
}

// ParseSignature parses "vendor:product" in hexadecimal, e.g. "1915:7777".
func ParseSignature(str string) (Signature, error) {
	parts := strings.Split(str, ":")
	if len(parts) != 2 {
		return Signature{}, ErrorInvalidSignature
	}
	vendor, err := strconv.ParseUint(strings.TrimPrefix(parts[0], "0x"), 16, 16)
	if err != nil {
		return Signature{}, ErrorInvalidSignature
	}
	product, err := strconv.ParseUint(strings.TrimPrefix(parts[1], "0x"), 16, 16)
	if err != nil {
		return Signature{}, ErrorInvalidSignature
	}
	return Signature{uint16(vendor), uint16(product)}, nil
}

// Stick axes run from -AxisRange to +AxisRange, positive right and up.
type Stick struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Frame is one snapshot of controller input.
type Frame struct {
	LeftStick  Stick `json:"leftStick"`
	RightStick Stick `json:"rightStick"`
	LT         bool  `json:"lt"`
	RT         bool  `json:"rt"`
}

// Controller is an attached input device. Frames are published by its
// input reader, or by anything else feeding it input.
type Controller struct {
	descriptor Descriptor
	frames     event.Dispatcher[Frame]
}

func NewController(descriptor Descriptor) *Controller {
	return &Controller{descriptor: descriptor}
}

func (c *Controller) Key() string {
	return c.descriptor.Key()
}

func (c *Controller) Descriptor() Descriptor {
	return c.descriptor
}

// OnFrame subscribes to input frames. fn runs on the publishing goroutine.
func (c *Controller) OnFrame(fn func(Frame)) *event.Subscription {
	return c.frames.Subscribe(fn)
}

func (c *Controller) Publish(frame Frame) {
	c.frames.Emit(frame)
}
