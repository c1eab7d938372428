// Package rangefinder polls an ultrasonic sensor and publishes raw and
// filtered distances to the hub.
package rangefinder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
)

// Mount is the direction a sensor faces, in degrees counterclockwise from the
// robot's right.
type Mount int

const (
	Right Mount = 0
	Front Mount = 90
	Left  Mount = 180
)

func (m Mount) String() string {
	switch m {
	case Right:
		return "right"
	case Front:
		return "front"
	case Left:
		return "left"
	default:
		return fmt.Sprintf("Mount(%d)", int(m))
	}
}

// Direction returns the hub reading the mount publishes to.
func (m Mount) Direction() hub.Direction {
	switch m {
	case Front:
		return hub.Front
	case Left, Right:
		return hub.Side
	default:
		panic(fmt.Sprintf("rangefinder: unsupported mount %v", m))
	}
}

// ParseMount maps a config name to a mount.
func ParseMount(name string) (Mount, error) {
	switch name {
	case "right":
		return Right, nil
	case "front":
		return Front, nil
	case "left":
		return Left, nil
	}
	return 0, fmt.Errorf("unknown sensor mount %q", name)
}

// Sensor is an ultrasonic ranger: Ping starts a measurement which Read
// collects once the settle delay has passed.
type Sensor interface {
	Ping() error
	Read() (int, error)
}

// Switcher is implemented by sensors that can stop emitting while paused, so
// they don't interfere with the other rangers.
type Switcher interface {
	Off() error
}

type Poller struct {
	hub    *hub.Hub
	sensor Sensor
	mount  Mount
	dir    hub.Direction
	window *Window
	settle time.Duration

	// Set while the window is stale: before the first sample and after a
	// wall-following pause.
	pausedLock sync.Mutex
	paused     bool

	log *slog.Logger
}

// New creates a poller for a sensor facing mount.  Mounts other than Right,
// Front and Left panic.
func New(h *hub.Hub, sensor Sensor, mount Mount, cfg config.Ranging) *Poller {
	return &Poller{
		hub:    h,
		sensor: sensor,
		mount:  mount,
		dir:    mount.Direction(),
		window: NewWindow(cfg.Window),
		settle: cfg.Settle,
		paused: true,
		log:    log.With("component", "rangefinder", "mount", mount.String()),
	}
}

// Paused reports whether the poller is idle waiting for wall following.
func (p *Poller) Paused() bool {
	p.pausedLock.Lock()
	defer p.pausedLock.Unlock()
	return p.paused
}

func (p *Poller) setPaused(paused bool) {
	p.pausedLock.Lock()
	defer p.pausedLock.Unlock()
	p.paused = paused
}

func (p *Poller) Loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	defer p.log.Info("Rangefinder loop exited")

	for ctx.Err() == nil {
		p.iterate(ctx)
	}
}

func (p *Poller) iterate(ctx context.Context) {
	active := p.mount == Front || p.hub.WallFollowing()
	if !active {
		if !p.Paused() {
			p.log.Debug("Pausing, not wall following")
			if s, ok := p.sensor.(Switcher); ok {
				if err := s.Off(); err != nil {
					p.log.Warn("Failed to switch sensor off", "err", err)
				}
			}
			p.setPaused(true)
		}
		p.wait(ctx)
		return
	}

	if p.Paused() {
		// After a pause the old minimum says nothing about where we are now.
		p.seed(ctx)
		p.setPaused(false)
	}

	raw, ok := p.sample(ctx)
	if !ok {
		return
	}
	filtered := p.window.Filter(raw)
	p.hub.SetDistances(p.dir, raw, filtered)
}

// seed refills the window with fresh readings without publishing them.
func (p *Poller) seed(ctx context.Context) {
	p.window.Reset()
	for i := 0; i < p.window.Size() && ctx.Err() == nil; i++ {
		if raw, ok := p.sample(ctx); ok {
			p.window.Push(raw)
		}
	}
}

func (p *Poller) sample(ctx context.Context) (int, bool) {
	if err := p.sensor.Ping(); err != nil {
		p.log.Warn("Ping failed", "err", err)
		p.wait(ctx)
		return 0, false
	}
	p.wait(ctx)
	raw, err := p.sensor.Read()
	if err != nil {
		p.log.Warn("Read failed", "err", err)
		return 0, false
	}
	return raw, true
}

// wait sleeps for the settle delay.  Cancellation just ends the wait early.
func (p *Poller) wait(ctx context.Context) {
	t := time.NewTimer(p.settle)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
