// Package chassis holds the robot's default mechanical calibration and the
// geometry of sensors mounted off its centre of rotation.
package chassis

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// Calibrated on the competition robot; all distances in cm.
const (
	LeftWheelRadiusCM  = 2.076
	RightWheelRadiusCM = 2.095

	// Effective wheel separation when turning counterclockwise and clockwise.
	// They differ because the chassis flexes asymmetrically.
	CCWidthCM = 16.692 + 0.335
	CWidthCM  = 16.689 + 0.325

	// +1 if the motors turning forward drive the robot forward.
	MotorDirection = 1

	TileCM = 30.48
)

// LightSensor is where the floor sensor sits: just behind the axle.
var LightSensor = Offset{Forward: -11.5, Left: 0.3}

// Offset is a sensor's position relative to the centre of rotation, in the
// robot's frame.
type Offset struct {
	// Forward is along the heading; negative is behind the axle.
	Forward float64 `yaml:"forward"`
	// Left is 90° counterclockwise from the heading.
	Left float64 `yaml:"left"`
}

// Distance returns the distance in cm from the centre of rotation.
func (o Offset) Distance() float64 {
	return r2.Norm(r2.Vec{X: o.Forward, Y: o.Left})
}

// Angle returns the sensor's bearing relative to the heading, in degrees.
func (o Offset) Angle() float64 {
	return math.Atan2(o.Left, o.Forward) * 180 / math.Pi
}

// project returns the world-frame vector from the centre of rotation to the
// sensor when the robot faces heading degrees.
func (o Offset) project(heading float64) r2.Vec {
	bearing := (heading + o.Angle()) * math.Pi / 180
	return r2.Scale(o.Distance(), r2.Vec{X: math.Cos(bearing), Y: math.Sin(bearing)})
}

// SensorPosition returns the sensor's world position for a robot centred at
// (x, y) facing heading degrees.
func (o Offset) SensorPosition(x, y, heading float64) r2.Vec {
	return r2.Add(r2.Vec{X: x, Y: y}, o.project(heading))
}

// CentreFrom inverts SensorPosition: the robot's centre given where the
// sensor is.
func (o Offset) CentreFrom(sensor r2.Vec, heading float64) r2.Vec {
	return r2.Sub(sensor, o.project(heading))
}
