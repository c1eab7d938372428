package sim

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
)

func newTestRobot(start hub.Pose) *Robot {
	r := New(config.Default(), start)
	r.Geometry.LeftRadius = 2
	r.Geometry.RightRadius = 2
	r.MaxWheelSpeed = 360
	return r
}

func TestStepStraight(t *testing.T) {
	r := newTestRobot(hub.Pose{})
	require.NoError(t, r.SetMotorSpeeds(127, 127))
	r.Step(time.Second)

	p := r.TruePose()
	assert.InDelta(t, 4*math.Pi, p.X, 1e-9)
	assert.InDelta(t, 0, p.Y, 1e-9)
	l, rr := r.TachoCounts()
	assert.Equal(t, 360, l)
	assert.Equal(t, 360, rr)
}

func TestEncodersFollowMotorDirection(t *testing.T) {
	r := newTestRobot(hub.Pose{})
	r.Geometry.Direction = -1
	require.NoError(t, r.SetMotorSpeeds(127, -127))
	r.Step(time.Second / 2)

	l, rr := r.TachoCounts()
	assert.Equal(t, -180, l)
	assert.Equal(t, 180, rr)
	assert.Less(t, angle180(r.TruePose().Theta), 0.0, "left forward turns clockwise")
}

func angle180(theta float64) float64 {
	if theta > 180 {
		return theta - 360
	}
	return theta
}

func TestFloorSensor(t *testing.T) {
	r := newTestRobot(hub.Pose{})
	s := r.FloorSensor()
	sensor := r.LightSensor

	// Put the sensor just on the line x = 30.48.
	r.Place(hub.Pose{X: 30.48 - sensor.Forward, Y: 15 - sensor.Left})
	v, err := s.Sample()
	require.NoError(t, err)
	assert.Equal(t, LineReflectance, v)

	r.Place(hub.Pose{X: 35 - sensor.Forward, Y: 15 - sensor.Left})
	v, err = s.Sample()
	require.NoError(t, err)
	assert.Equal(t, FloorReflectance, v)
}

func TestRangers(t *testing.T) {
	r := newTestRobot(hub.Pose{X: 0, Y: 0, Theta: 0})
	r.Arena = Arena{MinX: -50, MinY: -60, MaxX: 100, MaxY: 300}

	read := func(m rangefinder.Mount) int {
		s := r.Ranger(m)
		require.NoError(t, s.Ping())
		v, err := s.Read()
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, 100, read(rangefinder.Front))
	assert.Equal(t, 60, read(rangefinder.Right))
	assert.Equal(t, hub.NoReading, read(rangefinder.Left), "beyond range")

	r.Place(hub.Pose{Theta: 180})
	assert.Equal(t, 50, read(rangefinder.Front))
}

func TestLoop(t *testing.T) {
	r := newTestRobot(hub.Pose{})
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	r.Start(ctx, &wg)

	require.NoError(t, r.Motors().SetMotorSpeeds(100, 100))
	require.Eventually(t, func() bool {
		return r.TruePose().X > 1
	}, time.Second, time.Millisecond)

	r.Shutdown()
	cancel()
	wg.Wait()
	l, _ := r.Encoders().TachoCounts()
	assert.Positive(t, l)
}
