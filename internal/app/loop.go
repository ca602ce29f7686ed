package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gocv.io/x/gocv"

	"github.com/ayusman/fingergame/internal/capture"
	"github.com/ayusman/fingergame/internal/detector"
	"github.com/ayusman/fingergame/internal/fingers"
	"github.com/ayusman/fingergame/internal/game"
	"github.com/ayusman/fingergame/internal/metrics"
)

// session is the state owned by one Run.
type session struct {
	machine  *game.Machine
	detector detector.Detector
	// lastHands are the hands from the last inference, reused for still frames.
	lastHands []detector.HandLandmarks
	haveHands bool
}

func (a *App) newSession() (*session, error) {
	opts := []game.Option{game.WithClock(a.now)}
	if a.rng != nil {
		opts = append(opts, game.WithRand(a.rng))
	}
	m, err := game.New(a.cfg.Game, opts...)
	if err != nil {
		return nil, err
	}
	return &session{machine: m}, nil
}

// Run plays the game until ctx is done or a frame cannot be read. It opens
// the camera first and returns an error wrapping capture.ErrDeviceUnavailable
// if that fails. Camera, detector and presenters are released on return.
func (a *App) Run(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return ErrAlreadyRunning
	}
	a.running = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.running = false
		a.mu.Unlock()
	}()

	s, err := a.newSession()
	if err != nil {
		a.teardown(nil)
		return err
	}

	if err := a.camera.Open(); err != nil {
		a.teardown(nil)
		if !errors.Is(err, capture.ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", capture.ErrDeviceUnavailable, err)
		}
		return err
	}
	a.camera.SetFPS(a.cfg.FPS)

	s.detector = a.openDetector()
	defer a.teardown(s.detector)

	snap := s.machine.Snapshot()
	a.log.Info().
		Int("fps", a.cfg.FPS).
		Int("target", snap.Target).
		Msg("game started")

	ticker := time.NewTicker(time.Second / time.Duration(a.cfg.FPS))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.log.Info().Int("rounds", s.machine.Round()).Msg("game stopped")
			return nil
		case <-ticker.C:
			if err := a.tick(ctx, s); err != nil {
				a.log.Error().Err(err).Msg("game loop aborted")
				return err
			}
		}
	}
}

// tick processes one frame. Only a frame read failure is returned.
func (a *App) tick(ctx context.Context, s *session) error {
	if !a.IsEnabled() {
		return nil
	}

	ctx, span := a.tracer.Start(ctx, "game.tick")
	defer span.End()

	frame, err := a.camera.ReadFrame()
	if err != nil {
		a.metrics.FrameProcessed(metrics.FrameFailed)
		if !errors.Is(err, capture.ErrFrameAcquisition) {
			err = fmt.Errorf("%w: %v", capture.ErrFrameAcquisition, err)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "frame acquisition failed")
		return err
	}
	defer frame.Close()

	hands, outcome, err := a.detect(ctx, s, frame)
	if err != nil {
		a.metrics.FrameProcessed(metrics.FrameFailed)
		a.log.Warn().Err(err).Msg("hand detection failed, skipping frame")
		return nil
	}
	a.metrics.FrameProcessed(outcome)

	hands, invalid, err := validHands(hands, a.cfg.MaxHands)
	if err != nil {
		a.log.Warn().Err(err).Int("invalid", invalid).Msg("skipping malformed hands")
	}
	a.metrics.InvalidHands(invalid)

	shown, err := fingers.Aggregate(hands, a.cfg.Counting)
	if err != nil {
		a.log.Warn().Err(err).Msg("counting failed")
	}
	views := a.handViews(hands)

	advance := a.takeAdvance()
	if tr, ok := s.machine.Tick(shown, advance); ok {
		a.log.Info().
			Str("from", string(tr.From)).
			Str("state", string(tr.To)).
			Str("trigger", string(tr.Trigger)).
			Int("target", tr.Target).
			Str("shown", shown.String()).
			Msg("state changed")
		a.metrics.Transition(string(tr.Trigger), tr.Trigger == game.TriggerMatch)
		span.AddEvent("transition", trace.WithAttributes(
			attribute.String("trigger", string(tr.Trigger)),
			attribute.Int("target", tr.Target),
		))
	}

	snap := s.machine.Snapshot()
	a.metrics.SetGame(snap.Target, snap.Shown.Count, snap.Shown.Known)
	span.SetAttributes(
		attribute.String("game.state", string(snap.State)),
		attribute.Int("game.target", snap.Target),
		attribute.String("game.shown", snap.Shown.String()),
	)

	view := View{SessionID: a.sessionID, Snapshot: snap, Hands: views}
	a.setLastView(view)

	if a.cfg.Annotate {
		Annotate(frame, view)
	}
	for _, p := range a.presenters {
		if err := p.Present(ctx, frame, view); err != nil {
			a.log.Warn().Err(err).Msg("presenter failed")
		}
	}
	return nil
}

// detect returns the hands in frame. When motion gating is on and the scene
// is still, the previous inference is reused.
func (a *App) detect(ctx context.Context, s *session, frame *gocv.Mat) ([]detector.HandLandmarks, string, error) {
	if a.motion != nil && s.haveHands {
		if moved, _ := a.motion.Changed(frame); !moved {
			return s.lastHands, metrics.FrameReused, nil
		}
	}

	_, span := a.tracer.Start(ctx, "detector.detect")
	defer span.End()

	start := time.Now()
	hands, err := s.detector.Detect(frame)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "detect failed")
		return nil, metrics.FrameFailed, err
	}
	a.metrics.ObserveDetect(time.Since(start), len(hands))
	span.SetAttributes(attribute.Int("hands", len(hands)))

	if a.motion != nil {
		// Still frames are measured against the last frame inference saw.
		a.motion.SetBaseline(frame)
	}
	s.lastHands = hands
	s.haveHands = true
	return hands, metrics.FrameDetected, nil
}

// validHands keeps the first limit well-formed hands. Malformed hands do not
// take a slot; they are counted and their errors joined.
func validHands(hands []detector.HandLandmarks, limit int) ([]detector.HandLandmarks, int, error) {
	kept := make([]detector.HandLandmarks, 0, min(len(hands), limit))
	var errs []error
	for i := range hands {
		if err := hands[i].Validate(); err != nil {
			errs = append(errs, fmt.Errorf("hand %d: %w", i, err))
			continue
		}
		if len(kept) < limit {
			kept = append(kept, hands[i])
		}
	}
	return kept, len(errs), errors.Join(errs...)
}

func (a *App) handViews(hands []detector.HandLandmarks) []HandView {
	views := make([]HandView, 0, len(hands))
	for i := range hands {
		n, err := fingers.Count(&hands[i], a.cfg.Counting)
		if err != nil {
			continue
		}
		lat, _ := a.cfg.Counting.Laterality(&hands[i])
		views = append(views, HandView{
			Count:      n,
			Laterality: lat,
			Points:     hands[i].Clone().Points,
		})
	}
	return views
}

func (a *App) takeAdvance() bool {
	select {
	case <-a.advanceCh:
		return true
	default:
		return false
	}
}

// teardown releases everything Run acquired. det may be nil when Run
// failed before the detector was opened.
func (a *App) teardown(det detector.Detector) {
	for _, p := range a.presenters {
		if err := p.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing presenter")
		}
	}
	if det != nil {
		if err := det.Close(); err != nil {
			a.log.Warn().Err(err).Msg("error closing detector")
		}
	}
	if a.motion != nil {
		a.motion.Close()
	}
	if err := a.camera.Close(); err != nil {
		a.log.Warn().Err(err).Msg("error closing camera")
	}
}
