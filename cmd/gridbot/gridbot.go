package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/config"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/correction"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hardware"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/hub"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/linedetect"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/navigation"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/odometer"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/rangefinder"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/sim"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/trace"
)

// The robot is placed over the origin intersection facing roughly along the
// diagonal of the first tile.
const startHeading = 45

var _ hardware.Interface = (*sim.Robot)(nil)

func main() {
	configPath := flag.String("config", config.DefaultPath, "calibration and wiring YAML")
	useSim := flag.Bool("sim", false, "run against the simulated robot")
	logLevel := flag.String("log-level", "", "override the configured log level")
	flag.Parse()

	fmt.Print("---- Gridbot ----\n\n")

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	log.Init(cfg.LogLevel)
	log.Info("Starting", "GOMAXPROCS", runtime.GOMAXPROCS(0), "config", *configPath)

	inUse := filepath.Join(os.TempDir(), "gridbot-in-use.yaml")
	if err := cfg.Write(inUse); err != nil {
		log.Warn("Failed to record config in use", "err", err)
	}

	// Our global context, we cancel it to trigger shutdown.
	ctx, cancel := context.WithCancel(context.Background())

	signals := make(chan os.Signal, 2)
	signal.Notify(signals, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		s := <-signals
		log.Info("Signal", "signal", s)
		cancel()
		time.Sleep(2 * time.Second)
		os.Exit(0)
	}()

	var hw hardware.Interface
	if *useSim {
		// Slightly off the intersection and the nominal heading, so there is
		// something to correct.
		hw = sim.New(cfg, hub.Pose{X: -1.2, Y: 1.7, Theta: startHeading + 3})
	} else {
		hw, err = hardware.New(cfg.Hardware)
		if err != nil {
			log.Error("Failed to open hardware", "err", err)
			cancel()
			os.Exit(1)
		}
	}

	sideMount, err := rangefinder.ParseMount(cfg.Hardware.SideMount)
	if err != nil {
		panic(err)
	}

	h := hub.New()
	defer h.Close()
	h.SetPose(hub.Pose{Theta: startHeading})

	var wg sync.WaitGroup
	hw.Start(ctx, &wg)
	if err := hw.WaitReady(ctx); err != nil {
		log.Error("Encoders not reporting", "err", err)
		cancel()
		wg.Wait()
		hw.Shutdown()
		os.Exit(1)
	}

	// The encoders count from power-up, not from where we were placed.
	odo := odometer.New(h, hw.Encoders(), cfg.Odometry)
	odo.ResetCounters()

	wg.Add(4)
	go odo.Loop(ctx, &wg)
	go rangefinder.New(h, hw.Ranger(rangefinder.Front), rangefinder.Front, cfg.Ranging).Loop(ctx, &wg)
	go rangefinder.New(h, hw.Ranger(sideMount), sideMount, cfg.Ranging).Loop(ctx, &wg)
	go linedetect.New(h, hw.FloorSensor(), cfg.LineDetection).Loop(ctx, &wg)

	var rec *trace.Recorder
	if cfg.Trace.Dir != "" {
		rec = trace.New(h, cfg.Trace.Period, cfg.Grid.Tile)
		wg.Add(1)
		go rec.Loop(ctx, &wg)
	}

	err = run(ctx, cfg, h, hw, rec)
	switch {
	case errors.Is(err, context.Canceled):
		log.Info("Run cancelled")
	case err != nil:
		log.Error("Run failed", "err", err)
	default:
		log.Info("Run complete", "pose", h.Pose())
	}

	cancel()
	wg.Wait()
	hw.Shutdown()

	if rec != nil {
		if err := rec.Render(trace.Filename(cfg.Trace.Dir, log.RunID)); err != nil {
			log.Error("Failed to render trace", "err", err)
		}
	}
}

// run localizes at the origin, follows the route with snap correction on and
// localizes again at the end of it.
func run(ctx context.Context, cfg *config.Config, h *hub.Hub, hw hardware.Interface, rec *trace.Recorder) error {
	nav := navigation.New(h, hw.Motors(), cfg.Navigation)
	loc := localizer.New(h, nav, cfg)
	corr := correction.New(h, cfg)

	localize := func(ref config.Point) error {
		if err := nav.TurnTo(ctx, startHeading); err != nil {
			return err
		}
		res, err := loc.Localize(ctx, ref)
		if errors.Is(err, localizer.ErrNotConverged) {
			// Carry on with dead reckoning alone.
			log.Warn("Localization failed, keeping estimate", "attempts", res.Attempts, "pose", h.Pose())
			hw.PlaySound(cfg.Sounds.Failed)
			return nil
		} else if err != nil {
			return err
		}
		hw.PlaySound(cfg.Sounds.Localized)
		if rec != nil {
			rec.MarkFix(res.Pose)
		}
		return nil
	}

	if err := localize(config.Point{}); err != nil {
		return err
	}
	if len(cfg.Route) == 0 {
		return nil
	}

	corr.Start()
	for _, p := range cfg.Route {
		log.Info("Travelling", "x", p.X, "y", p.Y)
		if err := nav.TravelTo(ctx, p.X, p.Y); err != nil {
			corr.Stop()
			return err
		}
	}
	corr.Stop()

	return localize(cfg.Route[len(cfg.Route)-1])
}
