// Package localizer fixes the robot's heading and position by spinning on the
// spot over a grid intersection and timing the four line crossings.
//
// The light sensor sits at distance d and bearing α from the centre of
// rotation.  As the robot turns through 360° the sensor sweeps a circle of
// radius d which cuts the two nearest grid lines twice each.  The two
// crossings of one line are symmetric about the line's normal, so the
// angle between them gives the robot's distance from that line and the
// bisector gives the heading error.
package localizer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/angle"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// NumCrossings is the number of line crossings in one full turn over an
// intersection.
const NumCrossings = 4

var ErrNotConverged = errors.New("localization did not converge")

// Navigator turns the robot on the spot.  Negative is clockwise.  Turn blocks
// until the turn is complete.
type Navigator interface {
	Turn(ctx context.Context, degrees float64) error
}

type Result struct {
	// Pose is the pose committed to the hub.
	Pose hub.Pose
	// HeadingCorrection is the angle, in degrees, added to the heading.
	HeadingCorrection float64
	// Attempts is the number of sweeps made, successful or not.
	Attempts int
}

// Fix is the outcome of solving one sweep.
type Fix struct {
	X, Y              float64
	HeadingCorrection float64
}

type Localizer struct {
	hub         *hub.Hub
	nav         Navigator
	sensor      chassis.Offset
	maxRetries  int
	minInterval time.Duration

	now func() time.Time

	sweepLock     sync.Mutex
	crossings     []hub.Pose
	overTriggered bool
	lastAccepted  time.Time

	log *slog.Logger
}

func New(h *hub.Hub, nav Navigator, cfg *config.Config) *Localizer {
	return &Localizer{
		hub:         h,
		nav:         nav,
		sensor:      cfg.LightSensor,
		maxRetries:  cfg.Localization.MaxRetries,
		minInterval: cfg.Localization.MinInterval,
		now:         time.Now,
		log:         log.With("component", "localizer"),
	}
}

// Ping records a crossing.  Crossings closer together than the minimum
// interval are the same line seen twice and are ignored.
func (l *Localizer) Ping() {
	l.sweepLock.Lock()
	defer l.sweepLock.Unlock()

	now := l.now()
	if !l.lastAccepted.IsZero() && now.Sub(l.lastAccepted) < l.minInterval {
		return
	}
	l.lastAccepted = now

	if len(l.crossings) == NumCrossings {
		l.overTriggered = true
		return
	}
	l.crossings = append(l.crossings, l.hub.Pose())
}

func (l *Localizer) resetSweep() {
	l.sweepLock.Lock()
	defer l.sweepLock.Unlock()
	l.crossings = l.crossings[:0]
	l.overTriggered = false
}

func (l *Localizer) sweepResult() ([]hub.Pose, bool) {
	l.sweepLock.Lock()
	defer l.sweepLock.Unlock()
	return append([]hub.Pose(nil), l.crossings...), l.overTriggered
}

// LocalizeOrigin localizes over the intersection at the origin.
func (l *Localizer) LocalizeOrigin(ctx context.Context) (Result, error) {
	return l.Localize(ctx, config.Point{})
}

// Localize sweeps over the intersection at ref and commits the fix.  If no
// sweep sees exactly four crossings within the retry budget the pose is left
// alone and ErrNotConverged is returned.
func (l *Localizer) Localize(ctx context.Context, ref config.Point) (Result, error) {
	fix, attempts, err := l.sweep(ctx, ref)
	if err != nil {
		return Result{Attempts: attempts}, err
	}

	current := l.hub.Pose()
	pose := hub.Pose{
		X:     fix.X,
		Y:     fix.Y,
		Theta: angle.Heading(current.Theta + fix.HeadingCorrection),
	}
	l.hub.SetPose(pose)
	l.log.Info("Localized", "pose", pose, "correction", fix.HeadingCorrection, "attempts", attempts)
	return Result{Pose: pose, HeadingCorrection: fix.HeadingCorrection, Attempts: attempts}, nil
}

func (l *Localizer) sweep(ctx context.Context, ref config.Point) (Fix, int, error) {
	l.hub.AddObserver(l)
	defer l.hub.RemoveObserver(l)

	attempt := 0
	for attempt < 1+l.maxRetries {
		attempt++
		l.resetSweep()
		if err := l.nav.Turn(ctx, -360); err != nil {
			return Fix{}, attempt, fmt.Errorf("localization sweep failed: %w", err)
		}
		// Let crossings detected at the end of the turn land.
		l.hub.Sync()

		crossings, over := l.sweepResult()
		if over || len(crossings) != NumCrossings {
			l.log.Info("Sweep failed, retrying", "attempt", attempt, "crossings", len(crossings), "overTriggered", over)
			continue
		}
		var headings [NumCrossings]float64
		for i, p := range crossings {
			headings[i] = p.Theta
		}
		return Solve(headings, l.sensor, ref), attempt, nil
	}
	l.log.Warn("Giving up on localization", "attempts", attempt)
	return Fix{}, attempt, ErrNotConverged
}

// Solve computes the fix from the headings at which the sensor crossed the
// lines through ref, in the order they were crossed.  Crossings 1 and 3 are
// of one line and 2 and 4 of the other.
func Solve(headings [NumCrossings]float64, sensor chassis.Offset, ref config.Point) Fix {
	d := sensor.Distance()
	var b [NumCrossings]float64
	for i, h := range headings {
		b[i] = h + sensor.Angle()
	}

	p1 := newChord(b[0], b[2])
	p2 := newChord(b[1], b[3])
	yLine, xLine := p1, p2
	if p2.offNormal(90) < p1.offNormal(90) {
		yLine, xLine = p2, p1
	}

	// A horizontal line's normal points to 90 or 270, a vertical one's to 0
	// or 180; take whichever the chord faces.
	cy := 270.0
	if angle.ToRange(yLine.axis, 0, false) < 180 {
		cy = 90
	}
	cx := 180.0
	if angle.ToRange(xLine.axis, -90, false) < 90 {
		cx = 0
	}

	corrections := append(yLine.corrections(cy), xLine.corrections(cx)...)
	return Fix{
		X:                 ref.X - d*math.Cos(angle.Radians(cx+xLine.span/2)),
		Y:                 ref.Y - d*math.Sin(angle.Radians(cy+yLine.span/2)),
		HeadingCorrection: stat.Mean(corrections, nil),
	}
}

// chord is a pair of sensor bearings at which the same line was crossed.
type chord struct {
	u, v float64
	// span is the signed angle from v to u, in (-180, 180].
	span float64
	// axis is the bisector of the span, the measured direction of the line's
	// normal.
	axis float64
}

func newChord(u, v float64) chord {
	span := angle.Diff(u, v)
	return chord{u: u, v: v, span: span, axis: u - span/2}
}

// offNormal returns how far the chord's axis is from normal or its opposite,
// in [0, 90].
func (c chord) offNormal(normal float64) float64 {
	off := math.Abs(angle.Diff(c.axis, normal))
	if off > 90 {
		off = 180 - off
	}
	return off
}

// corrections returns, for each crossing, how far the true bearing is from
// the measured one assuming the line's true normal is at normal.
func (c chord) corrections(normal float64) []float64 {
	return []float64{
		angle.Diff(normal+c.span/2, c.u),
		angle.Diff(normal-c.span/2, c.v),
	}
}
