// Package correction snaps the pose onto the floor grid each time the light
// sensor crosses a line.
package correction

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// Axes says which pose coordinates a crossing corrected.
type Axes int

const (
	AxisX Axes = 1 << iota
	AxisY

	None Axes = 0
	Both      = AxisX | AxisY
)

func (a Axes) String() string {
	switch a {
	case None:
		return "none"
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case Both:
		return "xy"
	}
	return "invalid"
}

type Corrector struct {
	hub       *hub.Hub
	sensor    chassis.Offset
	tile      float64
	bandwidth float64
	maxRatio  float64

	log *slog.Logger
}

func New(h *hub.Hub, cfg *config.Config) *Corrector {
	return &Corrector{
		hub:       h,
		sensor:    cfg.LightSensor,
		tile:      cfg.Grid.Tile,
		bandwidth: cfg.Correction.Bandwidth,
		maxRatio:  cfg.Correction.MaxRatio,
		log:       log.With("component", "correction"),
	}
}

// Start registers for crossing events.
func (c *Corrector) Start() {
	c.hub.AddObserver(c)
}

// Stop unregisters.  Events already being delivered may still be handled.
func (c *Corrector) Stop() {
	c.hub.RemoveObserver(c)
}

// Ping handles one crossing.  Only the corrected coordinates are written so a
// concurrent heading update isn't lost.
func (c *Corrector) Ping() {
	corrected, axes := c.Apply(c.hub.Pose())
	if axes&AxisX != 0 {
		c.hub.SetX(corrected.X)
	}
	if axes&AxisY != 0 {
		c.hub.SetY(corrected.Y)
	}
	c.log.Debug("Line crossed", "axes", axes, "pose", corrected)
}

// Apply returns pose snapped onto the grid line(s) under the light sensor,
// and which axes it changed.
func (c *Corrector) Apply(pose hub.Pose) (hub.Pose, Axes) {
	s := c.sensor.SensorPosition(pose.X, pose.Y, pose.Theta)
	marker := r2.Vec{X: c.nearestLine(s.X), Y: c.nearestLine(s.Y)}
	distX := math.Abs(s.X - marker.X)
	distY := math.Abs(s.Y - marker.Y)

	// distX/distY: small means the sensor is on a constant-x line.
	var ratio float64
	switch {
	case distX == 0 && distY == 0:
		ratio = 1
	case distY == 0:
		ratio = math.Inf(1)
	default:
		ratio = distX / distY
	}

	var axes Axes
	switch {
	case distX < c.bandwidth && distY < c.bandwidth &&
		ratio > 1/c.maxRatio && ratio < c.maxRatio:
		axes = Both
	case distX < c.bandwidth && ratio <= 1/c.maxRatio:
		axes = AxisX
	case distY < c.bandwidth && ratio >= c.maxRatio:
		axes = AxisY
	default:
		return pose, None
	}

	snapped := s
	if axes&AxisX != 0 {
		snapped.X = marker.X
	}
	if axes&AxisY != 0 {
		snapped.Y = marker.Y
	}
	centre := c.sensor.CentreFrom(snapped, pose.Theta)
	if axes&AxisX != 0 {
		pose.X = centre.X
	}
	if axes&AxisY != 0 {
		pose.Y = centre.Y
	}
	return pose, axes
}

// nearestLine rounds p to the nearest grid line.  Halfway rounds away from
// zero, except at -tile/2 which rounds to 0.
func (c *Corrector) nearestLine(p float64) float64 {
	v := p/c.tile + 0.5
	if p >= -c.tile/2 {
		return c.tile * math.Floor(v)
	}
	return c.tile * (math.Ceil(v) - 1)
}
