package gamepad

import "encoding/binary"

// Decoder turns one input report into a frame. It returns false for
// reports that carry no stick state.
type Decoder func(report []byte) (Frame, bool)

// triggerThreshold matches the XInput trigger dead zone.
const triggerThreshold = 30

// DecodeXbox360 decodes the wired Xbox 360 pad input report: triggers in
// bytes 4 and 5, then four little endian int16 axes.
func DecodeXbox360(report []byte) (Frame, bool) {
	if len(report) < 14 || report[0] != 0x00 || report[1] < 14 {
		return Frame{}, false
	}

	axis := func(offset int) float64 {
		return float64(int16(binary.LittleEndian.Uint16(report[offset:]))) / 256
	}

	return Frame{
		LeftStick:  Stick{X: axis(6), Y: axis(8)},
		RightStick: Stick{X: axis(10), Y: axis(12)},
		LT:         report[4] > triggerThreshold,
		RT:         report[5] > triggerThreshold,
	}, true
}
