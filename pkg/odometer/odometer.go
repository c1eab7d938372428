// Package odometer integrates wheel rotation into the hub's pose estimate.
package odometer

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/angle"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// Encoders reads both wheels' cumulative rotation, in degrees, as one pair
// taken as close together in time as the hardware allows.
type Encoders interface {
	TachoCounts() (left, right int)
}

// Motor is a single wheel's rotation counter.
type Motor interface {
	TachoCount() int
}

type pair struct {
	left, right Motor
}

// Pair adapts two independently read motors into Encoders.  The reads are
// back to back with nothing in between.
func Pair(left, right Motor) Encoders {
	return pair{left: left, right: right}
}

func (p pair) TachoCounts() (int, int) {
	l := p.left.TachoCount()
	r := p.right.TachoCount()
	return l, r
}

type Odometer struct {
	hub      *hub.Hub
	encoders Encoders
	geometry config.Odometry

	lastLeft, lastRight int
	conflicts           int64

	log *slog.Logger
}

// New creates an odometer.  Counters are taken to start at zero; call
// ResetCounters if the wheels have moved since the motors were opened.
func New(h *hub.Hub, encoders Encoders, geometry config.Odometry) *Odometer {
	return &Odometer{
		hub:      h,
		encoders: encoders,
		geometry: geometry,
		log:      log.With("component", "odometer"),
	}
}

// ResetCounters takes the current counter values as the baseline.
func (o *Odometer) ResetCounters() {
	l, r := o.encoders.TachoCounts()
	o.lastLeft = o.geometry.Direction * l
	o.lastRight = o.geometry.Direction * r
}

// Conflicts returns how many steps were discarded because the pose was
// corrected while they were computed.
func (o *Odometer) Conflicts() int {
	return int(atomic.LoadInt64(&o.conflicts))
}

// Step integrates the wheel motion since the previous step.  If another writer
// changed the pose meanwhile the motion is discarded and Step returns false.
func (o *Odometer) Step() bool {
	start := o.hub.Pose()

	l, r := o.encoders.TachoCounts()
	left := o.geometry.Direction * l
	right := o.geometry.Direction * r

	leftDist := angle.Radians(float64(left-o.lastLeft)) * o.geometry.LeftRadius
	rightDist := angle.Radians(float64(right-o.lastRight)) * o.geometry.RightRadius
	o.lastLeft, o.lastRight = left, right

	next := Integrate(start, leftDist, rightDist, o.geometry)
	if !o.hub.CompareAndSetPose(start, next) {
		atomic.AddInt64(&o.conflicts, 1)
		o.log.Debug("Pose corrected during step, discarding", "start", start, "now", o.hub.Pose())
		return false
	}
	return true
}

// Integrate moves pose by the given wheel travel distances, in cm.
func Integrate(pose hub.Pose, leftDist, rightDist float64, geometry config.Odometry) hub.Pose {
	diff := rightDist - leftDist
	width := geometry.CWidth
	if diff >= 0 {
		width = geometry.CCWidth
	}
	dTheta := angle.Degrees(diff / width)
	dist := (leftDist + rightDist) / 2

	// Travel along the heading halfway through the turn.
	phi := angle.Radians(pose.Theta + dTheta/2)

	return hub.Pose{
		X:     pose.X + dist*math.Cos(phi),
		Y:     pose.Y + dist*math.Sin(phi),
		Theta: angle.Heading(pose.Theta + dTheta),
	}
}

func (o *Odometer) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer o.log.Info("Odometer loop exited")

	period := o.geometry.Period
	for ctx.Err() == nil {
		start := time.Now()
		if !o.Step() {
			// Start over against the corrected pose straight away.
			continue
		}
		if remaining := period - time.Since(start); remaining > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(remaining):
			}
		}
	}
}
