// Package sim simulates the robot on a gridded floor inside a walled arena.
// It implements the same capabilities as the real hardware so the whole
// stack can run without a robot.
package sim

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/angle"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/linedetect"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
)

const (
	// Reflectance of bare floor and of a line.
	FloorReflectance = 600
	LineReflectance  = 300

	stepPeriod = time.Millisecond
)

type Arena struct {
	MinX, MinY, MaxX, MaxY float64
}

type Robot struct {
	// Settings; change them before calling Start.
	Geometry    config.Odometry
	LightSensor chassis.Offset
	Tile        float64
	LineWidth   float64
	// MaxWheelSpeed is the wheel speed at full power, in degrees per second.
	MaxWheelSpeed float64
	Arena         Arena

	lock        sync.Mutex
	pose        hub.Pose
	left, right int8
	// Wheel rotation in degrees.
	leftDeg, rightDeg float64

	log *slog.Logger
}

// New creates a simulated robot with the calibration in cfg, truly at start.
func New(cfg *config.Config, start hub.Pose) *Robot {
	tile := cfg.Grid.Tile
	return &Robot{
		Geometry:      cfg.Odometry,
		LightSensor:   cfg.LightSensor,
		Tile:          tile,
		LineWidth:     0.3,
		MaxWheelSpeed: 720,
		Arena:         Arena{MinX: -2 * tile, MinY: -2 * tile, MaxX: 6 * tile, MaxY: 6 * tile},
		pose:          start,
		log:           log.With("component", "sim"),
	}
}

// TruePose returns where the robot really is.
func (r *Robot) TruePose() hub.Pose {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.pose
}

// Place moves the robot without turning the wheels.
func (r *Robot) Place(p hub.Pose) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.pose = p
}

func (r *Robot) SetMotorSpeeds(left, right int8) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.left, r.right = left, right
	return nil
}

// TachoCounts reports wheel rotation the way the encoders do: signed by the
// motor direction.
func (r *Robot) TachoCounts() (left, right int) {
	r.lock.Lock()
	defer r.lock.Unlock()
	d := float64(r.Geometry.Direction)
	return int(math.Round(d * r.leftDeg)), int(math.Round(d * r.rightDeg))
}

// Step advances the simulation by dt.
func (r *Robot) Step(dt time.Duration) {
	r.lock.Lock()
	defer r.lock.Unlock()

	leftDeg := float64(r.left) / 127 * r.MaxWheelSpeed * dt.Seconds()
	rightDeg := float64(r.right) / 127 * r.MaxWheelSpeed * dt.Seconds()
	r.leftDeg += leftDeg
	r.rightDeg += rightDeg

	r.pose = odometer.Integrate(r.pose,
		angle.Radians(leftDeg)*r.Geometry.LeftRadius,
		angle.Radians(rightDeg)*r.Geometry.RightRadius,
		r.Geometry)
}

// Loop runs the physics in real time.
func (r *Robot) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.log.Info("Simulation loop exited")

	ticker := time.NewTicker(stepPeriod)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Step(now.Sub(last))
			last = now
		}
	}
}

// onLine reports whether p is on a grid line.
func (r *Robot) onLine(p float64) bool {
	nearest := r.Tile * math.Floor(p/r.Tile+0.5)
	return math.Abs(p-nearest) <= r.LineWidth/2
}

// FloorSensor returns the reflectance sensor.
func (r *Robot) FloorSensor() linedetect.Sensor {
	return floorSensor{r}
}

type floorSensor struct {
	r *Robot
}

func (f floorSensor) Sample() (int, error) {
	p := f.r.TruePose()
	s := f.r.LightSensor.SensorPosition(p.X, p.Y, p.Theta)
	if f.r.onLine(s.X) || f.r.onLine(s.Y) {
		return LineReflectance, nil
	}
	return FloorReflectance, nil
}

// Ranger returns the ultrasonic sensor facing mount.
func (r *Robot) Ranger(m rangefinder.Mount) rangefinder.Sensor {
	return ranger{r: r, mount: m}
}

type ranger struct {
	r     *Robot
	mount rangefinder.Mount
}

func (g ranger) Ping() error { return nil }

func (g ranger) Read() (int, error) {
	p := g.r.TruePose()
	bearing := p.Theta + float64(g.mount) - 90
	d := g.r.Arena.distance(p.X, p.Y, bearing)
	if d > hub.NoReading {
		return hub.NoReading, nil
	}
	return int(d), nil
}

// distance returns how far the wall is from (x, y) looking along bearing.
// The point must be inside the arena.
func (a Arena) distance(x, y, bearing float64) float64 {
	dx := math.Cos(angle.Radians(bearing))
	dy := math.Sin(angle.Radians(bearing))
	d := math.Inf(1)
	if dx > 0 {
		d = math.Min(d, (a.MaxX-x)/dx)
	} else if dx < 0 {
		d = math.Min(d, (a.MinX-x)/dx)
	}
	if dy > 0 {
		d = math.Min(d, (a.MaxY-y)/dy)
	} else if dy < 0 {
		d = math.Min(d, (a.MinY-y)/dy)
	}
	return d
}

// Start runs the physics until ctx is done.
func (r *Robot) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go r.Loop(ctx, wg)
}

// WaitReady returns at once: the simulated encoders start at zero.
func (r *Robot) WaitReady(ctx context.Context) error { return nil }

func (r *Robot) Motors() navigation.Motors   { return r }
func (r *Robot) Encoders() odometer.Encoders { return r }

func (r *Robot) PlaySound(path string) {
	r.log.Info("Playing sound", "path", path)
}

func (r *Robot) Shutdown() {
	_ = r.SetMotorSpeeds(0, 0)
}
