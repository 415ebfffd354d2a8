package crazyflie

import "fmt"

type crazyflieError uint8

func (e crazyflieError) Error() string {
	return fmt.Sprintf("crazyflie: %s", crazyflieErrorString[e])
}

const (
	ErrorNoResponse crazyflieError = iota
	ErrorDisconnected

	ErrorLogBlockOrItemNotFound
	ErrorLogBlockNoMemory
	ErrorLogBlockTooLong
	ErrorLogBlockPeriodTooShort

	ErrorUnknownTelemetryChannel

	ErrorUnknown
)

var crazyflieErrorString = map[crazyflieError]string{
	ErrorNoResponse:   "not responding",
	ErrorDisconnected: "disconnected",

	ErrorLogBlockOrItemNotFound: "log block or item not found",
	ErrorLogBlockNoMemory:       "no memory to allocated log block",
	ErrorLogBlockTooLong:        "log block is too long",
	ErrorLogBlockPeriodTooShort: "log block reporting period too short",

	ErrorUnknownTelemetryChannel: "unknown telemetry channel",

	ErrorUnknown: "an unknown error occurred",
}

// logError maps the status byte of a log control response.
func logError(code byte) error {
	switch code {
	case 0:
		return nil
	case 2:
		return ErrorLogBlockOrItemNotFound
	case 7:
		return ErrorLogBlockTooLong
	case 12:
		return ErrorLogBlockNoMemory
	default:
		return ErrorUnknown
	}
}
