// Package linedetect watches the floor sensor for the dark grid lines and
// tells the hub's observers each time one is crossed.
package linedetect

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// Sensor reads the floor's reflectance; lines read lower than bare floor.
type Sensor interface {
	Sample() (int, error)
}

type Detector struct {
	hub    *hub.Hub
	sensor Sensor
	cfg    config.LineDetection

	// Smoothed reading of bare floor; zero until the first sample.
	baseline float64
	onLine   bool

	log *slog.Logger
}

func New(h *hub.Hub, sensor Sensor, cfg config.LineDetection) *Detector {
	return &Detector{
		hub:    h,
		sensor: sensor,
		cfg:    cfg,
		log:    log.With("component", "linedetect"),
	}
}

func (d *Detector) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer d.log.Info("Line detector loop exited")

	ticker := time.NewTicker(d.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		v, err := d.sensor.Sample()
		if err != nil {
			d.log.Warn("Failed to read reflectance", "err", err)
			continue
		}
		d.update(v)
	}
}

// update publishes a sample and reports whether it started a crossing.
func (d *Detector) update(v int) bool {
	d.hub.SetReflectance(v)

	if d.baseline == 0 {
		d.baseline = float64(v)
		return false
	}
	drop := (d.baseline - float64(v)) / d.baseline * 100

	crossed := false
	switch {
	case !d.onLine && drop > d.cfg.Threshold:
		d.onLine = true
		crossed = true
		d.log.Debug("Line", "sample", v, "baseline", d.baseline)
		d.hub.NotifyObservers()
	case d.onLine && drop < d.cfg.Threshold/2:
		d.onLine = false
	}
	if !d.onLine {
		d.baseline += d.cfg.BaselineAlpha * (float64(v) - d.baseline)
	}
	return crossed
}
