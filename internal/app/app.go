// Package app runs the finger counting game: it reads camera frames, counts
// the fingers shown, drives the game state machine and hands every result
// to the registered presenters.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/capture"
	"github.com/ayusman/fingergame/internal/detector"
	"github.com/ayusman/fingergame/internal/fingers"
	"github.com/ayusman/fingergame/internal/game"
	"github.com/ayusman/fingergame/internal/metrics"
	"github.com/ayusman/fingergame/internal/telemetry"
)

var (
	// ErrInvalidConfig is returned by New for unusable loop settings.
	ErrInvalidConfig = errors.New("invalid app config")
	// ErrAlreadyRunning is returned when Run is called on a running App.
	ErrAlreadyRunning = errors.New("app already running")
)

// Config holds the frame loop settings.
type Config struct {
	CameraID int
	// FPS is the loop rate.
	FPS int
	// MaxHands caps how many detected hands are counted.
	MaxHands int
	// SkipStaticFrames reuses the previous hands while the scene is still.
	SkipStaticFrames bool
	MotionThreshold  float64
	// Annotate draws the skeleton and prompt onto frames before presenting.
	Annotate bool

	Game     game.Config
	Counting fingers.Options
	Detector detector.Config
}

// DefaultConfig returns the settings the game ships with.
func DefaultConfig() Config {
	return Config{
		FPS:             capture.DefaultFPS,
		MaxHands:        detector.DefaultConfig().MaxHands,
		MotionThreshold: capture.DefaultMotionThreshold,
		Annotate:        true,
		Game:            game.DefaultConfig(),
		Detector:        detector.DefaultConfig(),
	}
}

func (c Config) validate() error {
	if c.FPS <= 0 {
		return fmt.Errorf("%w: fps must be positive, got %d", ErrInvalidConfig, c.FPS)
	}
	if c.MaxHands < 1 {
		return fmt.Errorf("%w: max hands must be at least 1, got %d", ErrInvalidConfig, c.MaxHands)
	}
	if err := c.Game.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// HandView is one counted hand as shown to presenters.
type HandView struct {
	Count      int                `json:"count"`
	Laterality fingers.Laterality `json:"laterality"`
	Points     []detector.Point3D `json:"points"`
}

// View is everything a presenter needs to render one frame.
type View struct {
	SessionID string `json:"session"`
	game.Snapshot
	Hands []HandView `json:"hands"`
}

// Presenter receives every processed frame. frame is only valid for the
// duration of the call; implementations must copy or encode it before
// returning.
type Presenter interface {
	Present(ctx context.Context, frame *gocv.Mat, v View) error
	Close() error
}

// Option configures an App.
type Option func(*App)

// WithCamera replaces the camera opened from Config.CameraID.
func WithCamera(c capture.Camera) Option {
	return func(a *App) { a.camera = c }
}

// WithDetector sets the hand detector. Without it Run tries MediaPipe and
// falls back to the mock detector.
func WithDetector(d detector.Detector) Option {
	return func(a *App) { a.detector = d }
}

// WithPresenter adds a presenter. Presenters are called in the order added.
func WithPresenter(p Presenter) Option {
	return func(a *App) {
		if p != nil {
			a.presenters = append(a.presenters, p)
		}
	}
}

// WithMetrics records loop and game metrics on m.
func WithMetrics(m *metrics.Manager) Option {
	return func(a *App) { a.metrics = m }
}

// WithTracer sets the tracer for tick spans.
func WithTracer(t trace.Tracer) Option {
	return func(a *App) {
		if t != nil {
			a.tracer = t
		}
	}
}

// WithClock sets the time source for game state timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *App) {
		if now != nil {
			a.now = now
		}
	}
}

// WithRand sets the random source for target numbers.
func WithRand(r game.Rand) Option {
	return func(a *App) { a.rng = r }
}

// App orchestrates capture, detection, counting and the game.
type App struct {
	cfg        Config
	camera     capture.Camera
	motion     *capture.MotionDetector
	detector   detector.Detector
	presenters []Presenter
	metrics    *metrics.Manager
	tracer     trace.Tracer
	now        func() time.Time
	rng        game.Rand
	sessionID  string
	log        zerolog.Logger
	advanceCh  chan struct{}

	mu       sync.RWMutex
	enabled  bool
	running  bool
	lastView *View
}

// New creates an App. Nothing is opened until Run.
func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	a := &App{
		cfg:       cfg,
		tracer:    telemetry.Tracer(),
		now:       time.Now,
		sessionID: id,
		log:       log.With().Str("session", id).Logger(),
		advanceCh: make(chan struct{}, 1),
		enabled:   true,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.camera == nil {
		a.camera = capture.NewCamera(cfg.CameraID)
	}
	if cfg.SkipStaticFrames {
		a.motion = capture.NewMotionDetector(cfg.MotionThreshold)
	}

	return a, nil
}

// SessionID identifies this App's run in logs and presented views.
func (a *App) SessionID() string {
	return a.sessionID
}

// Advance asks for the next number. It never blocks; requests made before
// the loop consumes the previous one are coalesced.
func (a *App) Advance() {
	select {
	case a.advanceCh <- struct{}{}:
	default:
	}
}

// SetEnabled pauses or resumes the game. While paused frames are not read.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled returns whether the game is running or paused.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// LastView returns the most recently presented view.
func (a *App) LastView() (View, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastView == nil {
		return View{}, false
	}
	return *a.lastView, true
}

func (a *App) setLastView(v View) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastView = &v
}

// openDetector returns the injected detector or, failing that, MediaPipe
// with a mock fallback.
func (a *App) openDetector() detector.Detector {
	if a.detector != nil {
		return a.detector
	}
	mp, err := detector.NewMediaPipeDetector(a.cfg.Detector)
	if err != nil {
		a.log.Warn().Err(err).Msg("MediaPipe not available, using mock detector")
		return detector.NewMockDetector()
	}
	a.log.Info().Msg("using MediaPipe hand detection")
	return mp
}
