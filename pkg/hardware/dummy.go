package hardware

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/linedetect"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
)

// Dummy stands in for missing devices.  Motors log and go nowhere, rangers
// see nothing and the floor is blank.
type Dummy struct {
	log *slog.Logger
}

func NewDummy() *Dummy {
	return &Dummy{log: log.With("component", "dummyhw")}
}

func (d *Dummy) Start(ctx context.Context, wg *sync.WaitGroup) {
	d.log.Info("Start")
}

func (d *Dummy) WaitReady(ctx context.Context) error { return nil }

func (d *Dummy) Motors() navigation.Motors { return d }

func (d *Dummy) SetMotorSpeeds(left, right int8) error {
	d.log.Debug("SetMotorSpeeds", "left", left, "right", right)
	return nil
}

func (d *Dummy) Encoders() odometer.Encoders { return d }

func (d *Dummy) TachoCounts() (int, int) { return 0, 0 }

func (d *Dummy) Ranger(m rangefinder.Mount) rangefinder.Sensor { return d }

func (d *Dummy) Ping() error { return nil }

func (d *Dummy) Read() (int, error) { return hub.NoReading, nil }

func (d *Dummy) FloorSensor() linedetect.Sensor { return d }

func (d *Dummy) Sample() (int, error) { return 600, nil }

func (d *Dummy) PlaySound(path string) {
	d.log.Info("PlaySound", "path", path)
}

func (d *Dummy) Shutdown() {
	d.log.Info("Shutdown")
}

var _ Interface = (*Dummy)(nil)
