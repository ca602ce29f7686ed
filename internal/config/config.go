// Package config defines the game's process configuration and how it is
// layered from defaults, a YAML file, stored settings and the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ayusman/fingergame/internal/detector"
	"github.com/ayusman/fingergame/internal/fingers"
	"github.com/ayusman/fingergame/internal/game"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogPretty switches logs to a human readable console writer.
	LogPretty bool `koanf:"log_pretty"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite settings database. Empty means ~/.fingergame/fingergame.db.
	DBPath string `koanf:"db_path"`

	// WebDir overrides where the game page is served from.
	WebDir string `koanf:"web_dir"`

	CameraID int `koanf:"camera_id"`
	FPS      int `koanf:"fps"`

	// MaxHands bounds how many hands are counted per frame.
	MaxHands               int     `koanf:"max_hands"`
	MinDetectionConfidence float64 `koanf:"min_detection_confidence"`
	MinTrackingConfidence  float64 `koanf:"min_tracking_confidence"`

	// SkipStaticFrames reuses the previous hands while the scene is still.
	SkipStaticFrames bool    `koanf:"skip_static_frames"`
	MotionThreshold  float64 `koanf:"motion_threshold"`

	// CelebrationMS is how long the correct screen stays up.
	CelebrationMS int `koanf:"celebration_ms"`
	TargetMin     int `koanf:"target_min"`
	TargetMax     int `koanf:"target_max"`

	// UpAxis is the image direction fingers point in: up, down, left or right.
	UpAxis string `koanf:"up_axis"`

	// Tray shows the system tray menu.
	Tray bool `koanf:"tray"`

	// OtelEndpoint is the OTLP/HTTP collector URL. Empty disables tracing.
	OtelEndpoint string `koanf:"otel_endpoint"`
}

// New returns a Config populated with defaults.
func New() *Config {
	g := game.DefaultConfig()
	d := detector.DefaultConfig()
	return &Config{
		LogLevel:               "info",
		Addr:                   ":8080",
		CameraID:               0,
		FPS:                    30,
		MaxHands:               d.MaxHands,
		MinDetectionConfidence: d.MinConfidence,
		MinTrackingConfidence:  d.MinTrackingConf,
		MotionThreshold:        1.0,
		CelebrationMS:          int(g.CelebrationDuration / time.Millisecond),
		TargetMin:              g.TargetMin,
		TargetMax:              g.TargetMax,
		UpAxis:                 fingers.UpNegY.String(),
	}
}

// Validate reports the first problem with c, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FPS <= 0:
		return fmt.Errorf("%w: fps must be positive, got %d", ErrInvalidConfig, c.FPS)
	case c.MaxHands < 1:
		return fmt.Errorf("%w: max_hands must be at least 1, got %d", ErrInvalidConfig, c.MaxHands)
	case c.MinDetectionConfidence < 0 || c.MinDetectionConfidence > 1:
		return fmt.Errorf("%w: min_detection_confidence must be within [0,1]", ErrInvalidConfig)
	case c.MinTrackingConfidence < 0 || c.MinTrackingConfidence > 1:
		return fmt.Errorf("%w: min_tracking_confidence must be within [0,1]", ErrInvalidConfig)
	case c.TargetMax > fingers.FingersPerHand*c.MaxHands:
		return fmt.Errorf("%w: target_max %d cannot be shown with %d hand(s)", ErrInvalidConfig, c.TargetMax, c.MaxHands)
	}
	if _, err := fingers.ParseUp(c.UpAxis); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := c.Game().Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Game returns the state machine settings.
func (c *Config) Game() game.Config {
	return game.Config{
		CelebrationDuration: time.Duration(c.CelebrationMS) * time.Millisecond,
		TargetMin:           c.TargetMin,
		TargetMax:           c.TargetMax,
	}
}

// Detector returns the hand detector settings.
func (c *Config) Detector() detector.Config {
	return detector.Config{
		MaxHands:        c.MaxHands,
		MinConfidence:   c.MinDetectionConfidence,
		MinTrackingConf: c.MinTrackingConfidence,
	}
}

// Counting returns the finger counting options. Call Validate first; an
// unparsable axis falls back to the default.
func (c *Config) Counting() fingers.Options {
	up, _ := fingers.ParseUp(c.UpAxis)
	return fingers.Options{Up: up}
}
