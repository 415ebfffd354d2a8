package copter

import "time"

// Channel names a telemetry stream.
type Channel string

const (
	ChannelAccelerometer Channel = "accelerometer"
	ChannelGyro          Channel = "gyro"
	ChannelMotor         Channel = "motor"
	ChannelStabilizer    Channel = "stabilizer"
)

// Channels are subscribed on every connection.
var Channels = []Channel{ChannelAccelerometer, ChannelGyro, ChannelMotor, ChannelStabilizer}

type Telemetry struct {
	Copter  *Copter
	Channel Channel
	// Data is keyed by variable name without its group, e.g. "roll" or "m1".
	Data map[string]float64
	Time time.Time
}

type Stabilizer struct {
	Roll   float64 `json:"roll"`
	Pitch  float64 `json:"pitch"`
	Yaw    float64 `json:"yaw"`
	Thrust float64 `json:"thrust"`
}

func stabilizerFrom(data map[string]float64) Stabilizer {
	return Stabilizer{
		Roll:   data["roll"],
		Pitch:  data["pitch"],
		Yaw:    data["yaw"],
		Thrust: data["thrust"],
	}
}
