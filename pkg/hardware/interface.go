package hardware

import (
	"context"
	"sync"

	"github.com/tigerbot-team/tigerbot/gridbot/pkg/linedetect"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
)

// Interface is everything the localization stack needs from the robot.
type Interface interface {
	// Start runs any background work the devices need, e.g. reading the
	// motor board, until ctx is done.
	Start(ctx context.Context, wg *sync.WaitGroup)
	// WaitReady blocks until the encoders report real counts.  Call it after
	// Start and before reading Encoders.
	WaitReady(ctx context.Context) error

	Motors() navigation.Motors
	Encoders() odometer.Encoders
	// Ranger returns the ultrasonic sensor facing mount.
	Ranger(m rangefinder.Mount) rangefinder.Sensor
	FloorSensor() linedetect.Sensor

	PlaySound(path string)
	Shutdown()
}
