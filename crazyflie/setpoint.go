package crazyflie

import "github.com/mikehamer/crazypilot/crtp"

// rpytRequest is the commander packet: roll, pitch and yaw rate as
// little-endian float32 followed by the thrust.
type rpytRequest struct {
	roll, pitch, yawrate float32
	thrust               uint16
}

func (r *rpytRequest) Port() crtp.Port       { return crtp.PortSetpoint }
func (r *rpytRequest) Channel() crtp.Channel { return 0 }

func (r *rpytRequest) Bytes() []byte {
	packet := make([]byte, 0, 14)
	for _, f := range []float32{r.roll, r.pitch, r.yawrate} {
		packet = append(packet, float32ToBytes(f)...)
	}
	return append(packet, uint16ToBytes(r.thrust)...)
}

// LegacySetpointSend queues an attitude setpoint ahead of other traffic.
// Roll and pitch are in degrees, yawrate in degrees per second.
func (cf *Crazyflie) LegacySetpointSend(roll, pitch, yawrate float32, thrust uint16) error {
	return cf.PacketSendPriority(&rpytRequest{roll, pitch, yawrate, thrust})
}

