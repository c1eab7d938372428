// Package config loads the robot's calibration and wiring from YAML.  Values
// missing from the file keep their defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v2"

	"github.com/tigerbot-team/tigerbot/gridbot/internal/log"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/chassis"
	"github.com/tigerbot-team/tigerbot/gridbot/pkg/srf08"
)

const DefaultPath = "/cfg/gridbot.yaml"

type Config struct {
	LogLevel string `yaml:"log_level"`

	Odometry      Odometry       `yaml:"odometry"`
	LightSensor   chassis.Offset `yaml:"light_sensor"`
	Grid          Grid           `yaml:"grid"`
	Correction    Correction     `yaml:"correction"`
	Localization  Localization   `yaml:"localization"`
	Ranging       Ranging        `yaml:"ranging"`
	LineDetection LineDetection  `yaml:"line_detection"`
	Navigation    Navigation     `yaml:"navigation"`
	Hardware      Hardware       `yaml:"hardware"`
	Trace         Trace          `yaml:"trace"`
	Sounds        Sounds         `yaml:"sounds"`

	// Route is visited after the initial localization; the robot localizes
	// again at the last point.
	Route []Point `yaml:"route"`
}

type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type Odometry struct {
	LeftRadius  float64       `yaml:"left_radius"`
	RightRadius float64       `yaml:"right_radius"`
	CCWidth     float64       `yaml:"cc_width"`
	CWidth      float64       `yaml:"c_width"`
	Direction   int           `yaml:"direction"`
	Period      time.Duration `yaml:"period"`
}

type Grid struct {
	Tile float64 `yaml:"tile"`
}

type Correction struct {
	// Bandwidth is the furthest the sensor may be from a line, in cm, for the
	// line to be trusted.
	Bandwidth float64 `yaml:"bandwidth"`
	// MaxRatio separates single line crossings from intersections.
	MaxRatio float64 `yaml:"max_ratio"`
}

type Localization struct {
	MaxRetries  int           `yaml:"max_retries"`
	MinInterval time.Duration `yaml:"min_interval"`
}

type Ranging struct {
	Window int           `yaml:"window"`
	Settle time.Duration `yaml:"settle"`
}

type LineDetection struct {
	Period time.Duration `yaml:"period"`
	// Threshold is the drop below baseline, in percent, that means "on a line".
	Threshold float64 `yaml:"threshold"`
	// BaselineAlpha is the smoothing factor of the off-line baseline.
	BaselineAlpha float64 `yaml:"baseline_alpha"`
}

type Navigation struct {
	Period            time.Duration `yaml:"period"`
	TurnKp            float64       `yaml:"turn_kp"`
	MaxTurnSpeed      float64       `yaml:"max_turn_speed"`
	MinTurnSpeed      float64       `yaml:"min_turn_speed"`
	DriveSpeed        float64       `yaml:"drive_speed"`
	HeadingKp         float64       `yaml:"heading_kp"`
	AngleTolerance    float64       `yaml:"angle_tolerance"`
	PositionTolerance float64       `yaml:"position_tolerance"`
}

type Hardware struct {
	I2CBus          string `yaml:"i2c_bus"`
	FrontRangerAddr int    `yaml:"front_ranger_addr"`
	SideRangerAddr  int    `yaml:"side_ranger_addr"`
	// RangerMaxCM limits how far the rangers look, which bounds how long a
	// ping takes.  Ranging.Settle must cover it.
	RangerMaxCM int `yaml:"ranger_max_cm"`
	// SideMount is "left" or "right".
	SideMount string `yaml:"side_mount"`

	MotorBoardPort string `yaml:"motor_board_port"`
	MotorBoardBaud int    `yaml:"motor_board_baud"`
	// ReadyTimeout is how long to wait for the board's first encoder report.
	ReadyTimeout time.Duration `yaml:"ready_timeout"`

	ReflectanceSPI     string `yaml:"reflectance_spi"`
	ReflectanceChannel int    `yaml:"reflectance_channel"`
}

type Trace struct {
	Dir    string        `yaml:"dir"`
	Period time.Duration `yaml:"period"`
}

type Sounds struct {
	Localized string `yaml:"localized"`
	Failed    string `yaml:"failed"`
}

func Default() *Config {
	return &Config{
		LogLevel: "info",
		Odometry: Odometry{
			LeftRadius:  chassis.LeftWheelRadiusCM,
			RightRadius: chassis.RightWheelRadiusCM,
			CCWidth:     chassis.CCWidthCM,
			CWidth:      chassis.CWidthCM,
			Direction:   chassis.MotorDirection,
			Period:      10 * time.Millisecond,
		},
		LightSensor: chassis.LightSensor,
		Grid:        Grid{Tile: chassis.TileCM},
		Correction: Correction{
			Bandwidth: 5,
			MaxRatio:  2,
		},
		Localization: Localization{
			MaxRetries:  3,
			MinInterval: 200 * time.Millisecond,
		},
		Ranging: Ranging{
			Window: 5,
			Settle: 20 * time.Millisecond,
		},
		LineDetection: LineDetection{
			Period:        5 * time.Millisecond,
			Threshold:     15,
			BaselineAlpha: 0.05,
		},
		Navigation: Navigation{
			Period:            10 * time.Millisecond,
			TurnKp:            0.02,
			MaxTurnSpeed:      0.5,
			MinTurnSpeed:      0.12,
			DriveSpeed:        0.6,
			HeadingKp:         0.02,
			AngleTolerance:    1,
			PositionTolerance: 1,
		},
		Hardware: Hardware{
			I2CBus:             "/dev/i2c-1",
			FrontRangerAddr:    0x70,
			SideRangerAddr:     0x71,
			RangerMaxCM:        srf08.MaxCM,
			SideMount:          "left",
			MotorBoardPort:     "/dev/ttyACM0",
			MotorBoardBaud:     115200,
			ReadyTimeout:       2 * time.Second,
			ReflectanceSPI:     "/dev/spidev0.0",
			ReflectanceChannel: 0,
		},
		Trace: Trace{
			Period: 50 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults.  A missing file is not an error: the
// defaults are used as-is.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Warn("No config file, using defaults", "path", path)
		return cfg, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Write records the config in use.
func (c *Config) Write(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0666)
}

func (c *Config) Validate() error {
	o := c.Odometry
	switch {
	case o.LeftRadius <= 0 || o.RightRadius <= 0:
		return fmt.Errorf("wheel radii must be positive, got %v/%v", o.LeftRadius, o.RightRadius)
	case o.CCWidth <= 0 || o.CWidth <= 0:
		return fmt.Errorf("wheel widths must be positive, got %v/%v", o.CCWidth, o.CWidth)
	case o.Direction != 1 && o.Direction != -1:
		return fmt.Errorf("motor direction must be 1 or -1, got %v", o.Direction)
	case o.Period <= 0:
		return fmt.Errorf("odometry period must be positive")
	case c.LightSensor.Distance() == 0:
		return fmt.Errorf("light sensor can't be at the centre of rotation")
	case c.Grid.Tile <= 0:
		return fmt.Errorf("tile size must be positive, got %v", c.Grid.Tile)
	case c.Correction.Bandwidth <= 0 || c.Correction.Bandwidth >= c.Grid.Tile/2:
		return fmt.Errorf("correction bandwidth must be in (0, %v), got %v", c.Grid.Tile/2, c.Correction.Bandwidth)
	case c.Correction.MaxRatio <= 1:
		return fmt.Errorf("correction max ratio must exceed 1, got %v", c.Correction.MaxRatio)
	case c.Localization.MaxRetries < 0:
		return fmt.Errorf("localization retries can't be negative")
	case c.Ranging.Window < 1:
		return fmt.Errorf("ranging window must hold at least one sample")
	case c.Hardware.RangerMaxCM < 1 || c.Hardware.RangerMaxCM > srf08.MaxCM:
		return fmt.Errorf("ranger max range must be in [1, %d], got %d", srf08.MaxCM, c.Hardware.RangerMaxCM)
	case c.Ranging.Settle < srf08.RangingTime(c.Hardware.RangerMaxCM):
		return fmt.Errorf("ranging settle delay %v is shorter than a %dcm ping (%v)",
			c.Ranging.Settle, c.Hardware.RangerMaxCM, srf08.RangingTime(c.Hardware.RangerMaxCM))
	case c.LineDetection.Period <= 0:
		return fmt.Errorf("line detection period must be positive")
	case c.LineDetection.Threshold <= 0 || c.LineDetection.Threshold >= 100:
		return fmt.Errorf("line detection threshold must be a percentage, got %v", c.LineDetection.Threshold)
	case c.LineDetection.BaselineAlpha <= 0 || c.LineDetection.BaselineAlpha > 1:
		return fmt.Errorf("line detection baseline alpha must be in (0, 1]")
	case c.Navigation.Period <= 0:
		return fmt.Errorf("navigation period must be positive")
	case c.Hardware.SideMount != "left" && c.Hardware.SideMount != "right":
		return fmt.Errorf("side mount must be left or right, got %q", c.Hardware.SideMount)
	case c.Hardware.ReadyTimeout <= 0:
		return fmt.Errorf("motor board ready timeout must be positive")
	}
	return nil
}
