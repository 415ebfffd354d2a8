package crazyradio

import "fmt"

type radioError uint8

func (e radioError) Error() string {
	return fmt.Sprintf("crazyradio: %s", radioErrorString[e])
}

const (
	ErrorDeviceNotFound radioError = iota
	ErrorFirmwareTooOld
	ErrorInvalidChannel
	ErrorInvalidDatarate
	ErrorInvalidPower
	ErrorInvalidArc
	ErrorInvalidArdBytes
	ErrorInvalidLink
	ErrorWriteLength
	ErrorClosed
	ErrorUnknownClient
)

var radioErrorString = map[radioError]string{
	ErrorDeviceNotFound:  "device not found",
	ErrorFirmwareTooOld:  "radio firmware too old, at least 0.4 is required",
	ErrorInvalidChannel:  "invalid channel",
	ErrorInvalidDatarate: "invalid datarate",
	ErrorInvalidPower:    "invalid power",
	ErrorInvalidArc:      "invalid ARC",
	ErrorInvalidArdBytes: "invalid ARD bytes",
	ErrorInvalidLink:     "invalid link uri",
	ErrorWriteLength:     "incorrect number of bytes written to endpoint",
	ErrorClosed:          "radio has been closed",
	ErrorUnknownClient:   "no client registered for channel and address",
}
