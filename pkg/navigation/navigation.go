// Package navigation drives the robot to headings and points using the hub's
// pose estimate as feedback.
package navigation

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/angle"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// Motors sets the wheel speeds, -127 to 127, positive forward.
type Motors interface {
	SetMotorSpeeds(left, right int8) error
}

// Slow down over this distance from the target, in cm.
const approachCM = 10

type Navigator struct {
	hub    *hub.Hub
	motors Motors
	cfg    config.Navigation

	log *slog.Logger
}

func New(h *hub.Hub, motors Motors, cfg config.Navigation) *Navigator {
	return &Navigator{
		hub:    h,
		motors: motors,
		cfg:    cfg,
		log:    log.With("component", "navigation"),
	}
}

// Turn rotates on the spot by degrees, counterclockwise if positive.  Turns
// of more than 180° are made the long way round rather than wrapped.
func (n *Navigator) Turn(ctx context.Context, degrees float64) error {
	defer n.stop()

	ticker := time.NewTicker(n.cfg.Period)
	defer ticker.Stop()

	last := n.hub.Pose().Theta
	turned := 0.0
	for {
		current := n.hub.Pose().Theta
		turned += angle.Diff(current, last)
		last = current

		remaining := degrees - turned
		if math.Abs(remaining) < n.cfg.AngleTolerance {
			n.log.Debug("Turn done", "target", degrees, "turned", turned)
			return nil
		}

		rotation := n.cfg.TurnKp * remaining
		rotation = clampMagnitude(rotation, n.cfg.MinTurnSpeed, n.cfg.MaxTurnSpeed)
		if err := n.drive(-rotation, rotation); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// TurnTo turns the shortest way to the given heading.
func (n *Navigator) TurnTo(ctx context.Context, heading float64) error {
	return n.Turn(ctx, angle.Diff(heading, n.hub.Pose().Theta))
}

// TravelTo turns towards (x, y) and drives there, steering onto the bearing
// as it goes.
func (n *Navigator) TravelTo(ctx context.Context, x, y float64) error {
	p := n.hub.Pose()
	if math.Hypot(x-p.X, y-p.Y) < n.cfg.PositionTolerance {
		return nil
	}
	if err := n.TurnTo(ctx, bearing(p, x, y)); err != nil {
		return err
	}
	defer n.stop()

	ticker := time.NewTicker(n.cfg.Period)
	defer ticker.Stop()

	for {
		p := n.hub.Pose()
		dx, dy := x-p.X, y-p.Y
		dist := math.Hypot(dx, dy)
		headingError := angle.Diff(bearing(p, x, y), p.Theta)
		// Negative once the target is behind us.
		along := dist * math.Cos(angle.Radians(headingError))

		if dist < n.cfg.PositionTolerance || along <= 0 {
			n.log.Debug("Arrived", "target", fmt.Sprintf("(%.2f, %.2f)", x, y), "pose", p)
			return nil
		}

		speed := n.cfg.DriveSpeed * math.Min(1, along/approachCM)
		speed = math.Max(speed, n.cfg.MinTurnSpeed)
		steer := n.cfg.HeadingKp * headingError
		if err := n.drive(speed-steer, speed+steer); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *Navigator) drive(left, right float64) error {
	m := math.Max(math.Abs(left), math.Abs(right))
	scale := 1.0
	if m > 1 {
		scale = 1.0 / m
	}
	l := scaleAndClamp(left*scale, 127)
	r := scaleAndClamp(right*scale, 127)
	if err := n.motors.SetMotorSpeeds(l, r); err != nil {
		return fmt.Errorf("failed to set motor speeds: %w", err)
	}
	return nil
}

func (n *Navigator) stop() {
	if err := n.motors.SetMotorSpeeds(0, 0); err != nil {
		n.log.Error("Failed to stop motors", "err", err)
	}
}

func bearing(p hub.Pose, x, y float64) float64 {
	return angle.Heading(angle.Degrees(math.Atan2(y-p.Y, x-p.X)))
}

// clampMagnitude limits |v| to [min, max], keeping its sign.
func clampMagnitude(v, min, max float64) float64 {
	sign := 1.0
	if v < 0 {
		sign = -1
	}
	return sign * math.Min(math.Max(math.Abs(v), min), max)
}

func scaleAndClamp(value, multiplier float64) int8 {
	multiplied := value * multiplier
	if multiplied <= math.MinInt8 {
		return math.MinInt8
	}
	if multiplied >= math.MaxInt8 {
		return math.MaxInt8
	}
	return int8(multiplied)
}
