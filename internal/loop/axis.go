package loop

import (
	"fmt"

	"github.com/knei-knurow/mahony/internal/sensor"
)

// Axis selects the measurement a channel controls.
type Axis string

const (
	AxisRoll  Axis = "roll"  // deg
	AxisPitch Axis = "pitch" // deg
	AxisYaw   Axis = "yaw"   // deg, relative to the start (or last re-arm)
	AxisGyroX Axis = "gx"    // deg/s
	AxisGyroY Axis = "gy"    // deg/s
	AxisGyroZ Axis = "gz"    // deg/s
)

var axes = []Axis{AxisRoll, AxisPitch, AxisYaw, AxisGyroX, AxisGyroY, AxisGyroZ}

// ParseAxis returns the Axis named s.
func ParseAxis(s string) (Axis, error) {
	for _, a := range axes {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown axis %q, want one of %v", s, axes)
}

// Attitude is a ZYX Euler attitude in degrees.
type Attitude struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Value picks the measurement of a from the estimated attitude or the raw sample.
func (a Axis) Value(att Attitude, s sensor.Sample) float64 {
	switch a {
	case AxisRoll:
		return att.Roll
	case AxisPitch:
		return att.Pitch
	case AxisYaw:
		return att.Yaw
	case AxisGyroX:
		return s.Gyro[0]
	case AxisGyroY:
		return s.Gyro[1]
	case AxisGyroZ:
		return s.Gyro[2]
	}
	return 0
}
