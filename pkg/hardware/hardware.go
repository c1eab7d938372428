// Package hardware opens the robot's devices and presents them as the
// capabilities the rest of gridbot uses.
package hardware

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/linedetect"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/mcp3008"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/motorboard"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/sound"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/srf08"
)

// IgnoreMissingEnv, when "true", replaces devices that fail to open with
// dummies instead of failing.
const IgnoreMissingEnv = "IGNORE_MISSING_HARDWARE"

type Hardware struct {
	board    *motorboard.Board
	motors   navigation.Motors
	encoders odometer.Encoders
	rangers  map[rangefinder.Mount]rangefinder.Sensor
	floor    linedetect.Sensor

	readyTimeout time.Duration

	sounds *sound.Player

	log *slog.Logger
}

var _ Interface = (*Hardware)(nil)

// New opens every device named in cfg.
func New(cfg config.Hardware) (*Hardware, error) {
	ignoreMissing := os.Getenv(IgnoreMissingEnv) == "true"
	dummy := NewDummy()
	h := &Hardware{
		rangers:      map[rangefinder.Mount]rangefinder.Sensor{},
		readyTimeout: cfg.ReadyTimeout,
		sounds:       sound.NewPlayer(),
		log:          log.With("component", "hardware"),
	}

	// missing decides whether a device that failed to open is fatal.
	missing := func(what string, err error) error {
		if !ignoreMissing {
			return fmt.Errorf("failed to open %s: %w", what, err)
		}
		h.log.Warn("Using dummy", "device", what, "err", err)
		return nil
	}

	board, err := motorboard.Open(cfg.MotorBoardPort, cfg.MotorBoardBaud)
	if err != nil {
		if err := missing("motor board", err); err != nil {
			return nil, err
		}
		h.motors, h.encoders = dummy, dummy
	} else {
		h.board = board
		h.motors, h.encoders = board, board
	}

	sideMount, err := rangefinder.ParseMount(cfg.SideMount)
	if err != nil {
		return nil, err
	}
	for mount, addr := range map[rangefinder.Mount]int{
		rangefinder.Front: cfg.FrontRangerAddr,
		sideMount:         cfg.SideRangerAddr,
	} {
		r, err := srf08.New(cfg.I2CBus, addr)
		if err == nil {
			// Pings must finish within the rangefinder's settle delay.
			if err = r.LimitRange(cfg.RangerMaxCM); err != nil {
				_ = r.Close()
			}
		}
		if err != nil {
			if err := missing(mount.String()+" ranger", err); err != nil {
				return nil, err
			}
			h.rangers[mount] = dummy
			continue
		}
		h.rangers[mount] = r
	}

	adc, err := mcp3008.Open(cfg.ReflectanceSPI)
	if err != nil {
		if err := missing("reflectance ADC", err); err != nil {
			return nil, err
		}
		h.floor = dummy
	} else {
		h.floor = mcp3008.Channel{ADC: adc, N: cfg.ReflectanceChannel}
	}

	return h, nil
}

func (h *Hardware) Start(ctx context.Context, wg *sync.WaitGroup) {
	if h.board == nil {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := h.board.Monitor(ctx); err != nil && ctx.Err() == nil {
			// Without encoders the pose is meaningless.
			panic(fmt.Sprintf("motor board failed: %v", err))
		}
	}()
}

// WaitReady returns once the motor board is reporting encoder counts.
func (h *Hardware) WaitReady(ctx context.Context) error {
	if h.board == nil {
		return nil
	}
	return h.board.WaitReady(ctx, h.readyTimeout)
}

func (h *Hardware) Motors() navigation.Motors { return h.motors }

func (h *Hardware) Encoders() odometer.Encoders { return h.encoders }

func (h *Hardware) Ranger(m rangefinder.Mount) rangefinder.Sensor {
	r, ok := h.rangers[m]
	if !ok {
		panic(fmt.Sprintf("hardware: no ranger facing %v", m))
	}
	return r
}

func (h *Hardware) FloorSensor() linedetect.Sensor { return h.floor }

func (h *Hardware) PlaySound(path string) {
	h.sounds.Play(path)
}

func (h *Hardware) Shutdown() {
	if h.board != nil {
		if err := h.board.Close(); err != nil {
			h.log.Warn("Failed to close motor board", "err", err)
		}
	}
	for _, r := range h.rangers {
		if c, ok := r.(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
	h.sounds.Close()
}
