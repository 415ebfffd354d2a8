// Package control turns controller input frames into copter setpoints.
package control

import (
	"math"

	"github.com/mikehamer/crazypilot/copter"
	"github.com/mikehamer/crazypilot/gamepad"
)

// Setpoint is one attitude command. Roll and pitch are in degrees, yaw in
// degrees per second.
type Setpoint struct {
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	Thrust uint16  `json:"thrust"`
}

// Map computes the setpoint for one frame. It depends on nothing but its
// arguments. Axes that do not meet their condition contribute zero.
func Map(scheme Scheme, frame gamepad.Frame) (Setpoint, error) {
	switch scheme {
	case OneStick:
		return Setpoint{
			Roll:   scale(frame.LeftStick.X, copter.MaxRoll),
			Pitch:  scale(frame.LeftStick.Y, copter.MaxPitch),
			Yaw:    scale(frame.RightStick.X, copter.MaxYaw),
			Thrust: thrust(frame.RightStick.Y),
		}, nil
	case TwoStick:
		return Setpoint{
			Roll:   scale(frame.RightStick.X, copter.MaxRoll),
			Pitch:  scale(frame.RightStick.Y, copter.MaxPitch),
			Yaw:    scale(frame.LeftStick.X, copter.MaxYaw),
			Thrust: thrust(frame.LeftStick.Y),
		}, nil
	case ReverseDave:
		return Setpoint{
			Roll:   scale(frame.LeftStick.X, copter.MaxRoll),
			Pitch:  scale(frame.LeftStick.Y, copter.MaxPitch),
			Yaw:    triggerYaw(frame),
			Thrust: thrust(frame.RightStick.Y),
		}, nil
	case Dave:
		return Setpoint{
			Roll:   scale(frame.RightStick.X, copter.MaxRoll),
			Pitch:  scale(frame.RightStick.Y, copter.MaxPitch),
			Yaw:    triggerYaw(frame),
			Thrust: thrust(frame.LeftStick.Y),
		}, nil
	case Three:
		return Setpoint{}, ErrorUnsupportedScheme
	default:
		return Setpoint{}, ErrorUnknownScheme
	}
}

func scale(axis, max float64) float64 {
	return axis / gamepad.AxisRange * max
}

// thrust maps a positive axis linearly onto the thrust range. The result
// is floored, as the wire format is an integer.
func thrust(axis float64) uint16 {
	if axis <= 0 {
		return 0
	}
	if axis > gamepad.AxisRange {
		axis = gamepad.AxisRange
	}
	return uint16(math.Floor(copter.MinThrust + (copter.MaxThrust-copter.MinThrust)*(axis/gamepad.AxisRange)))
}

// triggerYaw turns at half the maximum rate while a trigger is held. The
// right trigger wins when both are held.
func triggerYaw(frame gamepad.Frame) float64 {
	switch {
	case frame.RT:
		return copter.MaxYaw / 2
	case frame.LT:
		return -copter.MaxYaw / 2
	default:
		return 0
	}
}
