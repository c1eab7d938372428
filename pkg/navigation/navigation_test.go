package navigation

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerbot-team/tigerbot/gridbot/pkg/angle"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
)

// kinematicMotors moves the hub's pose directly by a fixed step per command.
type kinematicMotors struct {
	hub *hub.Hub

	lock      sync.Mutex
	turned    float64
	last      [2]int8
	commands  int
	failAfter int
	geometry  config.Odometry
	cmPerCall float64
}

func newKinematicMotors(h *hub.Hub) *kinematicMotors {
	return &kinematicMotors{
		hub:       h,
		failAfter: -1,
		cmPerCall: 0.5,
		geometry: config.Odometry{
			LeftRadius: 1, RightRadius: 1, CCWidth: 16, CWidth: 16, Direction: 1,
		},
	}
}

func (m *kinematicMotors) SetMotorSpeeds(left, right int8) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	if m.failAfter == 0 {
		return errors.New("board not responding")
	}
	m.failAfter--
	m.commands++
	m.last = [2]int8{left, right}

	start := m.hub.Pose()
	next := odometer.Integrate(start,
		float64(left)/127*m.cmPerCall, float64(right)/127*m.cmPerCall, m.geometry)
	m.turned += angle.Diff(next.Theta, start.Theta)
	m.hub.SetPose(next)
	return nil
}

func (m *kinematicMotors) stopped() bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.last == [2]int8{0, 0}
}

func testConfig() config.Navigation {
	cfg := config.Default().Navigation
	cfg.Period = 100 * time.Microsecond
	return cfg
}

func TestTurnFullCircleClockwise(t *testing.T) {
	h := hub.New()
	defer h.Close()
	h.SetPose(hub.Pose{Theta: 45})
	m := newKinematicMotors(h)
	n := New(h, m, testConfig())

	require.NoError(t, n.Turn(context.Background(), -360))
	assert.InDelta(t, -360, m.turned, 1)
	assert.InDelta(t, 0, angle.Diff(h.Pose().Theta, 45), 1)
	assert.True(t, m.stopped())
}

func TestTurnToTakesShortestWay(t *testing.T) {
	h := hub.New()
	defer h.Close()
	h.SetPose(hub.Pose{Theta: 350})
	m := newKinematicMotors(h)
	n := New(h, m, testConfig())

	require.NoError(t, n.TurnTo(context.Background(), 90))
	assert.InDelta(t, 100, m.turned, 1)
	assert.InDelta(t, 0, angle.Diff(h.Pose().Theta, 90), 1)
}

func TestTravelTo(t *testing.T) {
	h := hub.New()
	defer h.Close()
	m := newKinematicMotors(h)
	n := New(h, m, testConfig())

	require.NoError(t, n.TravelTo(context.Background(), 30, 40))
	p := h.Pose()
	assert.Less(t, math.Hypot(p.X-30, p.Y-40), 1.5)
	assert.True(t, m.stopped())

	// Already there.
	commands := m.commands
	require.NoError(t, n.TravelTo(context.Background(), p.X, p.Y))
	assert.Equal(t, commands, m.commands)
}

func TestMotorErrorsAreReturned(t *testing.T) {
	h := hub.New()
	defer h.Close()
	m := newKinematicMotors(h)
	m.failAfter = 3
	n := New(h, m, testConfig())

	err := n.Turn(context.Background(), 90)
	assert.ErrorContains(t, err, "board not responding")
}

func TestTurnCancelled(t *testing.T) {
	h := hub.New()
	defer h.Close()
	m := newKinematicMotors(h)
	n := New(h, m, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, n.Turn(ctx, 90), context.Canceled)
	assert.True(t, m.stopped())
}

func TestClampMagnitude(t *testing.T) {
	assert.Equal(t, 0.1, clampMagnitude(0.01, 0.1, 0.5))
	assert.Equal(t, -0.1, clampMagnitude(-0.01, 0.1, 0.5))
	assert.Equal(t, 0.5, clampMagnitude(3, 0.1, 0.5))
	assert.Equal(t, -0.3, clampMagnitude(-0.3, 0.1, 0.5))
}

func TestScaleAndClamp(t *testing.T) {
	assert.Equal(t, int8(127), scaleAndClamp(2, 127))
	assert.Equal(t, int8(-128), scaleAndClamp(-2, 127))
	assert.Equal(t, int8(63), scaleAndClamp(0.5, 127))
}
