// Package trace records the pose estimate during a run and renders it over
// the floor grid as a PNG, for checking localization after the fact.
package trace

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

const (
	pixelsPerCM = 4
	marginCM    = 20
)

type Recorder struct {
	hub    *hub.Hub
	period time.Duration
	tile   float64

	lock  sync.Mutex
	poses []hub.Pose
	// Fixes marks poses committed by localization.
	fixes []hub.Pose

	log *slog.Logger
}

func New(h *hub.Hub, period time.Duration, tile float64) *Recorder {
	return &Recorder{
		hub:    h,
		period: period,
		tile:   tile,
		log:    log.With("component", "trace"),
	}
}

// Record appends the current pose if it differs from the last one recorded.
func (r *Recorder) Record() {
	p := r.hub.Pose()
	r.lock.Lock()
	defer r.lock.Unlock()
	if n := len(r.poses); n > 0 && r.poses[n-1] == p {
		return
	}
	r.poses = append(r.poses, p)
}

// MarkFix records a localization result.
func (r *Recorder) MarkFix(p hub.Pose) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.fixes = append(r.fixes, p)
}

func (r *Recorder) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.poses)
}

func (r *Recorder) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer r.log.Info("Trace loop exited")

	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Record()
		}
	}
}

// Filename is the trace file name for a run.
func Filename(dir, runID string) string {
	return filepath.Join(dir, fmt.Sprintf("trace-%s.png", runID))
}

// Render draws the grid, the trail and the fixes to path.
func (r *Recorder) Render(path string) error {
	r.lock.Lock()
	poses := append([]hub.Pose(nil), r.poses...)
	fixes := append([]hub.Pose(nil), r.fixes...)
	r.lock.Unlock()

	minX, minY, maxX, maxY := bounds(append(poses, fixes...), r.tile)
	w := int(math.Ceil((maxX - minX) * pixelsPerCM))
	h := int(math.Ceil((maxY - minY) * pixelsPerCM))

	dc := gg.NewContext(w, h)
	dc.SetRGB(1, 1, 1)
	dc.Clear()

	// World to image: y up, cm to pixels.
	dc.Translate(-minX*pixelsPerCM, maxY*pixelsPerCM)
	dc.Scale(pixelsPerCM, -pixelsPerCM)

	dc.SetRGB(0.2, 0.2, 0.2)
	dc.SetLineWidth(1.5 / pixelsPerCM)
	for x := math.Ceil(minX/r.tile) * r.tile; x <= maxX; x += r.tile {
		dc.DrawLine(x, minY, x, maxY)
	}
	for y := math.Ceil(minY/r.tile) * r.tile; y <= maxY; y += r.tile {
		dc.DrawLine(minX, y, maxX, y)
	}
	dc.Stroke()

	dc.SetRGB(0, 0.4, 1)
	dc.SetLineWidth(1)
	for i, p := range poses {
		if i == 0 {
			dc.MoveTo(p.X, p.Y)
		} else {
			dc.LineTo(p.X, p.Y)
		}
	}
	dc.Stroke()

	dc.SetRGB(1, 0.2, 0)
	for _, p := range fixes {
		dc.DrawCircle(p.X, p.Y, 2)
		dc.Fill()
		heading := gg.Radians(p.Theta)
		dc.DrawLine(p.X, p.Y, p.X+8*math.Cos(heading), p.Y+8*math.Sin(heading))
		dc.Stroke()
	}

	if err := dc.SavePNG(path); err != nil {
		return fmt.Errorf("failed to write trace: %w", err)
	}
	r.log.Info("Wrote trace", "path", path, "poses", len(poses))
	return nil
}

// bounds returns the area to draw: every pose plus a margin, and at least
// one tile around the origin.
func bounds(poses []hub.Pose, tile float64) (minX, minY, maxX, maxY float64) {
	minX, minY, maxX, maxY = -tile, -tile, tile, tile
	for _, p := range poses {
		minX = math.Min(minX, p.X-marginCM)
		minY = math.Min(minY, p.Y-marginCM)
		maxX = math.Max(maxX, p.X+marginCM)
		maxY = math.Max(maxY, p.Y+marginCM)
	}
	return
}
