package crazyradio

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/google/gousb"
	"github.com/pkg/errors"
)

const (
	vendorOut = gousb.ControlVendor | gousb.ControlOut | gousb.ControlDevice
	vendorIn  = gousb.ControlVendor | gousb.ControlIn | gousb.ControlDevice
)

// RadioDevice is a single opened Crazyradio dongle. Callers sharing one
// device between goroutines must hold Lock for a whole
// configure/send/receive transaction.
type RadioDevice struct {
	context *gousb.Context
	device  *gousb.Device
	config  *gousb.Config
	intf    *gousb.Interface
	dataOut *gousb.OutEndpoint
	dataIn  *gousb.InEndpoint
	lock    sync.Mutex

	version  float64
	channel  uint8
	datarate Datarate
	address  uint64
}

func isRadio(desc *gousb.DeviceDesc) bool {
	return uint16(desc.Vendor) == VendorID && uint16(desc.Product) == ProductID
}

// firmwareVersion reads the bcdDevice field the way the radio firmware
// encodes it, major in the high byte and minor in the low byte.
func firmwareVersion(desc *gousb.DeviceDesc) float64 {
	bcd := uint16(desc.Device)
	version, _ := strconv.ParseFloat(fmt.Sprintf("%d.%d", bcd>>8, bcd&0xFF), 64)
	return version
}

// OpenRadio opens the index-th Crazyradio attached to the host and puts it in
// its default state.
func OpenRadio(index int) (*RadioDevice, error) {
	ctx := gousb.NewContext()

	devices, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return isRadio(desc)
	})
	if err != nil && len(devices) == 0 {
		ctx.Close()
		return nil, errors.Wrap(err, "crazyradio: enumerating usb devices")
	}

	if index < 0 || index >= len(devices) {
		for _, dev := range devices {
			dev.Close()
		}
		ctx.Close()
		return nil, ErrorDeviceNotFound
	}

	for i, dev := range devices {
		if i != index {
			dev.Close()
		}
	}

	radio, err := openRadio(ctx, devices[index])
	if err != nil {
		ctx.Close()
		return nil, err
	}
	return radio, nil
}

func openRadio(ctx *gousb.Context, dev *gousb.Device) (*RadioDevice, error) {
	version := firmwareVersion(dev.Desc)
	if version < minimumFirmwareVersion {
		dev.Close()
		return nil, ErrorFirmwareTooOld
	}

	dev.ControlTimeout = controlTimeout

	cfg, err := dev.Config(1)
	if err != nil {
		dev.Close()
		return nil, errors.Wrap(err, "crazyradio: selecting configuration")
	}

	intf, err := cfg.Interface(0, 0)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, errors.Wrap(err, "crazyradio: claiming interface")
	}

	// open the endpoint for transfers out
	dOut, err := intf.OutEndpoint(1)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, errors.Wrap(err, "crazyradio: opening out endpoint")
	}

	// open the endpoint for transfers in
	dIn, err := intf.InEndpoint(1)
	if err != nil {
		intf.Close()
		cfg.Close()
		dev.Close()
		return nil, errors.Wrap(err, "crazyradio: opening in endpoint")
	}

	radio := &RadioDevice{
		context: ctx,
		device:  dev,
		config:  cfg,
		intf:    intf,
		dataOut: dOut,
		dataIn:  dIn,
		version: version,
		// invalid values force the first Set* calls through to the device
		channel:  MaxChannel + 1,
		datarate: Datarate(0xFF),
		address:  ^uint64(0),
	}

	// can initialize the default states!
	for _, setup := range []func() error{
		func() error { return radio.SetDatarate(Datarate2MPS) },
		func() error { return radio.SetChannel(DefaultChannel) },
		func() error { return radio.SetAddress(DefaultAddress) },
		func() error { return radio.SetPower(Power0DBM) },
		func() error { return radio.SetArc(3) },
		func() error { return radio.SetArdBytes(32) },
	} {
		if err := setup(); err != nil {
			radio.closeDevice()
			return nil, err
		}
	}

	return radio, nil
}

func (radio *RadioDevice) Close() {
	radio.closeDevice()
	radio.context.Close()
}

func (radio *RadioDevice) closeDevice() {
	radio.intf.Close()
	radio.config.Close()
	radio.device.Close()
}

func (radio *RadioDevice) Lock() {
	radio.lock.Lock()
}

func (radio *RadioDevice) Unlock() {
	radio.lock.Unlock()
}

// Version returns the radio firmware version.
func (radio *RadioDevice) Version() float64 {
	return radio.version
}

func (radio *RadioDevice) vendorRequest(command radioCommand, value, index uint16, data []byte) error {
	_, err := radio.device.Control(vendorOut, uint8(command), value, index, data)
	return err
}

func (radio *RadioDevice) SetChannel(channel uint8) error {
	if channel > MaxChannel {
		return ErrorInvalidChannel
	}
	if radio.channel == channel {
		return nil
	}

	if err := radio.vendorRequest(SET_RADIO_CHANNEL, uint16(channel), 0, nil); err != nil {
		return err
	}
	radio.channel = channel
	return nil
}

func (radio *RadioDevice) SetDatarate(datarate Datarate) error {
	if datarate > Datarate2MPS {
		return ErrorInvalidDatarate
	}
	if radio.datarate == datarate {
		return nil
	}

	if err := radio.vendorRequest(SET_DATA_RATE, uint16(datarate), 0, nil); err != nil {
		return err
	}
	radio.datarate = datarate
	return nil
}

func (radio *RadioDevice) SetPower(power Power) error {
	if power > Power0DBM {
		return ErrorInvalidPower
	}

	return radio.vendorRequest(SET_RADIO_POWER, uint16(power), 0, nil)
}

func (radio *RadioDevice) SetArc(arc uint8) error {
	if arc > 15 {
		return ErrorInvalidArc
	}

	return radio.vendorRequest(SET_RADIO_ARC, uint16(arc), 0, nil)
}

func (radio *RadioDevice) SetArdBytes(nbytes uint8) error {
	// 0x00 - 0 Byte
	// ........
	// 0x20 - 32 Bytes
	if nbytes > 0x20 {
		return ErrorInvalidArdBytes
	}

	return radio.vendorRequest(SET_RADIO_ARD, uint16(0x80|nbytes), 0, nil)
}

func (radio *RadioDevice) SetAddress(address uint64) error {
	if radio.address == address {
		return nil
	}

	a := make([]byte, 5)
	a[4] = uint8((address >> 0) & 0xFF)
	a[3] = uint8((address >> 8) & 0xFF)
	a[2] = uint8((address >> 16) & 0xFF)
	a[1] = uint8((address >> 24) & 0xFF)
	a[0] = uint8((address >> 32) & 0xFF)

	if err := radio.vendorRequest(SET_RADIO_ADDRESS, 0, 0, a); err != nil {
		return err
	}
	radio.address = address
	return nil
}

// ScanChannels asks the radio firmware to send packet on every channel in
// [start, stop] and returns the channels on which it was acknowledged.
func (radio *RadioDevice) ScanChannels(start, stop uint8, packet []byte) ([]uint8, error) {
	if start > MaxChannel || stop > MaxChannel || start > stop {
		return nil, ErrorInvalidChannel
	}

	if err := radio.vendorRequest(SCANN_CHANNELS, uint16(start), uint16(stop), packet); err != nil {
		return nil, err
	}

	resp := make([]byte, 64)
	n, err := radio.device.Control(vendorIn, uint8(SCANN_CHANNELS), 0, 0, resp)
	if err != nil {
		return nil, err
	}

	// the scan leaves the radio on the last channel it tried
	radio.channel = stop

	channels := make([]uint8, n)
	copy(channels, resp[:n])
	return channels, nil
}

func (radio *RadioDevice) SendPacket(data []byte) error {
	// write the outgoing packet
	length, err := radio.dataOut.Write(data)
	if err != nil {
		return err
	}
	if len(data) != length {
		return ErrorWriteLength
	}
	return nil
}

func (radio *RadioDevice) ReadResponse() (bool, []byte, error) {
	// read the acknowledgement
	resp := make([]byte, 64) // largest packet size
	length, err := radio.dataIn.Read(resp)
	if err != nil {
		return false, nil, err
	}
	if length == 0 {
		return false, nil, nil
	}
	// ACK structure:
	// uint8_t resp : 1
	// uint8_t power detector : 1
	// uint8_t reserved : 2
	// uint8_t retransmission count : 4
	// uint8_t ackdata[1:32 bytes]
	ackReceived := (resp[0] & 0x01) != 0
	return ackReceived, resp[1:length], nil // return just the data portion of the acknowledgement
}
