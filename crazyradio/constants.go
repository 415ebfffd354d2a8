package crazyradio

import (
	"strings"
	"time"
)

// USB signature of the Crazyradio PA dongle.
const (
	VendorID  uint16 = 0x1915 // 6421
	ProductID uint16 = 0x7777 // 30583
)

// Lowest radio firmware able to run the channel scan used for discovery.
const minimumFirmwareVersion = 0.4

const (
	DefaultChannel uint8  = 80
	DefaultAddress uint64 = 0xE7E7E7E7E7
	MaxChannel     uint8  = 125
)

const (
	controlTimeout = 250 * time.Millisecond
	ioTimeout      = 50 * time.Millisecond
)

// Transmission datarate enum
type Datarate uint16

const (
	Datarate250KPS Datarate = iota
	Datarate1MPS
	Datarate2MPS
)

var datarateString = map[Datarate]string{
	Datarate250KPS: "250K",
	Datarate1MPS:   "1M",
	Datarate2MPS:   "2M",
}

func (d Datarate) String() string {
	if s, ok := datarateString[d]; ok {
		return s
	}
	return "unknown"
}

// ParseDatarate accepts both the short ("2M") and long ("2MPS") spellings.
func ParseDatarate(s string) (Datarate, error) {
	switch s {
	case "250K", "250KPS":
		return Datarate250KPS, nil
	case "1M", "1MPS":
		return Datarate1MPS, nil
	case "2M", "2MPS":
		return Datarate2MPS, nil
	}
	return 0, ErrorInvalidDatarate
}

// Transmission power enum
type Power uint16

const (
	PowerM18DBM Power = iota
	PowerM12DBM
	PowerM6DBM
	Power0DBM
)

var powerString = map[Power]string{
	PowerM18DBM: "-18dBm",
	PowerM12DBM: "-12dBm",
	PowerM6DBM:  "-6dBm",
	Power0DBM:   "0dBm",
}

func (p Power) String() string {
	if s, ok := powerString[p]; ok {
		return s
	}
	return "invalid"
}

func ParsePower(s string) (Power, error) {
	for p, name := range powerString {
		if strings.EqualFold(s, name) {
			return p, nil
		}
	}
	return 0, ErrorInvalidPower
}

// Radio commands enum
type radioCommand uint8

const (
	SET_RADIO_CHANNEL radioCommand = 0x01
	SET_RADIO_ADDRESS radioCommand = 0x02
	SET_DATA_RATE     radioCommand = 0x03
	SET_RADIO_POWER   radioCommand = 0x04
	SET_RADIO_ARD     radioCommand = 0x05
	SET_RADIO_ARC     radioCommand = 0x06
	SET_CONT_CARRIER  radioCommand = 0x20
	SCANN_CHANNELS    radioCommand = 0x21
	LAUNCH_BOOTLOADER radioCommand = 0xFF
)
