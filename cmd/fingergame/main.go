package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ayusman/fingergame/internal/app"
	"github.com/ayusman/fingergame/internal/capture"
	"github.com/ayusman/fingergame/internal/config"
	"github.com/ayusman/fingergame/internal/metrics"
	"github.com/ayusman/fingergame/internal/server"
	"github.com/ayusman/fingergame/internal/store"
	"github.com/ayusman/fingergame/internal/telemetry"
	"github.com/ayusman/fingergame/internal/tray"
)

const serviceName = "fingergame"

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		if errors.Is(err, capture.ErrDeviceUnavailable) {
			log.Error().Err(err).Msg("no camera; check that a webcam is connected and not in use")
		} else {
			log.Error().Err(err).Msg("fingergame exited")
		}
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The first pass only locates the settings database.
	boot, err := config.Load(ctx)
	if err != nil {
		return err
	}
	setupLogging(boot)

	dbPath := boot.DBPath
	if dbPath == "" {
		if dbPath, err = store.DefaultPath(); err != nil {
			return err
		}
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open settings store: %w", err)
	}
	defer st.Close()

	stored, err := st.Settings().All()
	if err != nil {
		return fmt.Errorf("read stored settings: %w", err)
	}
	cfg, err := config.Load(ctx, config.WithSettings(stored))
	if err != nil {
		// A bad stored value must not lock the player out.
		log.Warn().Err(err).Msg("stored settings rejected, using defaults")
		cfg = boot
	}
	setupLogging(cfg)

	shutdownTracing, err := telemetry.Setup(ctx, serviceName, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			log.Warn().Err(err).Msg("tracing shutdown")
		}
	}()

	m := metrics.NewManager()

	webDir := cfg.WebDir
	if webDir == "" {
		webDir = findWebDir()
	}
	if webDir != "" {
		log.Info().Str("dir", webDir).Msg("serving game page")
	}

	srv := server.New(server.Config{
		StaticDir: webDir,
		Store:     st,
		Settings:  cfg,
		Metrics:   m.Handler(),
	})

	opts := []app.Option{
		app.WithPresenter(srv),
		app.WithMetrics(m),
		app.WithTracer(telemetry.Tracer()),
	}

	var tr *tray.Tray
	if cfg.Tray {
		tr = tray.New()
		opts = append(opts, app.WithPresenter(tr))
	}

	game, err := app.New(appConfig(cfg), opts...)
	if err != nil {
		return err
	}
	srv.Attach(game)
	log.Info().
		Str("session", game.SessionID()).
		Int("target_min", cfg.TargetMin).
		Int("target_max", cfg.TargetMax).
		Msg("starting finger counting game")

	if tr == nil {
		return serve(ctx, game, srv, cfg.Addr, func() {})
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tr.OnToggle(game.SetEnabled)
	tr.OnAdvance(game.Advance)
	tr.OnOpen(func() { openBrowser(browserURL(cfg.Addr)) })
	tr.OnQuit(cancel)

	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, game, srv, cfg.Addr, tray.Quit)
	}()
	// The tray owns the main thread until Quit.
	tr.Run()
	cancel()
	return <-done
}

type runner interface {
	Run(ctx context.Context) error
}

type listener interface {
	ListenAndServe(ctx context.Context, addr string) error
}

// serve runs the game loop and the HTTP server until either stops or ctx
// is done, then stops the other and calls quit. The game error wins.
func serve(ctx context.Context, game runner, srv listener, addr string, quit func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpErr := make(chan error, 1)
	go func() {
		httpErr <- srv.ListenAndServe(ctx, addr)
		cancel()
	}()

	gameErr := make(chan error, 1)
	go func() {
		gameErr <- game.Run(ctx)
		cancel()
	}()

	gErr, hErr := <-gameErr, <-httpErr
	quit()

	if gErr != nil {
		if hErr != nil {
			log.Warn().Err(hErr).Msg("http server")
		}
		return gErr
	}
	return hErr
}

func setupLogging(cfg *config.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func appConfig(cfg *config.Config) app.Config {
	return app.Config{
		CameraID:         cfg.CameraID,
		FPS:              cfg.FPS,
		MaxHands:         cfg.MaxHands,
		SkipStaticFrames: cfg.SkipStaticFrames,
		MotionThreshold:  cfg.MotionThreshold,
		Annotate:         true,
		Game:             cfg.Game(),
		Counting:         cfg.Counting(),
		Detector:         cfg.Detector(),
	}
}

func browserURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("could not open browser")
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.fingergame/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	homeWebDir := filepath.Join(homeDir, ".fingergame", "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
