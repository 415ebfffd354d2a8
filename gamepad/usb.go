package gamepad

import (
	"context"
	"sync"

	"github.com/google/gousb"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"
)

// USB enumerates devices and reads controller input through libusb.
type USB struct {
	context *gousb.Context
	logger  hclog.Logger
	decode  Decoder

	lock    sync.Mutex
	readers map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewUSB(decode Decoder, logger hclog.Logger) *USB {
	if decode == nil {
		decode = DecodeXbox360
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &USB{
		context: gousb.NewContext(),
		logger:  logger,
		decode:  decode,
		readers: make(map[string]context.CancelFunc),
	}
}

// ListDevices returns the descriptor of every attached device without
// opening any of them.
func (u *USB) ListDevices() ([]Descriptor, error) {
	var descriptors []Descriptor
	_, err := u.context.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		descriptors = append(descriptors, Descriptor{
			Bus:     desc.Bus,
			Address: desc.Address,
			Vendor:  uint16(desc.Vendor),
			Product: uint16(desc.Product),
		})
		return false // only listing
	})
	if err != nil {
		return descriptors, errors.Wrap(err, "gamepad: enumerating usb devices")
	}
	return descriptors, nil
}

// Attach starts streaming the controller's input reports as frames until
// Detach or Close. Attaching twice is a no-op.
func (u *USB) Attach(controller *Controller) error {
	key := controller.Key()

	u.lock.Lock()
	defer u.lock.Unlock()
	if _, ok := u.readers[key]; ok {
		return nil
	}

	device, endpoint, done, err := u.openInput(controller.Descriptor())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	u.readers[key] = cancel

	u.wg.Add(1)
	go func() {
		defer u.wg.Done()
		defer device.Close()
		defer done()
		u.readThread(ctx, controller, endpoint)
	}()
	return nil
}

func (u *USB) Detach(controller *Controller) {
	u.lock.Lock()
	cancel, ok := u.readers[controller.Key()]
	delete(u.readers, controller.Key())
	u.lock.Unlock()

	if ok {
		cancel()
	}
}

func (u *USB) openInput(descriptor Descriptor) (*gousb.Device, *gousb.InEndpoint, func(), error) {
	devices, err := u.context.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == descriptor.Bus && desc.Address == descriptor.Address
	})
	if err != nil && len(devices) == 0 {
		return nil, nil, nil, errors.Wrapf(err, "gamepad: opening %s", descriptor)
	}
	if len(devices) == 0 {
		return nil, nil, nil, ErrorDeviceNotFound
	}
	for _, extra := range devices[1:] {
		extra.Close()
	}
	device := devices[0]

	if err := device.SetAutoDetach(true); err != nil {
		u.logger.Debug("kernel driver auto detach unavailable", "device", descriptor.Key(), "error", err)
	}

	intf, done, err := device.DefaultInterface()
	if err != nil {
		device.Close()
		return nil, nil, nil, errors.Wrapf(err, "gamepad: claiming interface of %s", descriptor)
	}

	for _, desc := range intf.Setting.Endpoints {
		if desc.Direction == gousb.EndpointDirectionIn && desc.TransferType == gousb.TransferTypeInterrupt {
			endpoint, err := intf.InEndpoint(desc.Number)
			if err != nil {
				done()
				device.Close()
				return nil, nil, nil, errors.Wrapf(err, "gamepad: opening endpoint of %s", descriptor)
			}
			return device, endpoint, done, nil
		}
	}

	done()
	device.Close()
	return nil, nil, nil, ErrorNoInputEndpoint
}

func (u *USB) readThread(ctx context.Context, controller *Controller, endpoint *gousb.InEndpoint) {
	logger := u.logger.With("controller", controller.Key())
	report := make([]byte, endpoint.Desc.MaxPacketSize)

	for {
		n, err := endpoint.ReadContext(ctx, report)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("input read failed, stopping reader", "error", err)
			return
		}

		if frame, ok := u.decode(report[:n]); ok {
			controller.Publish(frame)
		}
	}
}

// Close stops every reader and releases libusb.
func (u *USB) Close() {
	u.lock.Lock()
	for key, cancel := range u.readers {
		cancel()
		delete(u.readers, key)
	}
	u.lock.Unlock()

	u.wg.Wait()
	u.context.Close()
}
