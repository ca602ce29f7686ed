package game

import (
	"math/rand/v2"
	"time"

	"github.com/ayusman/fingergame/internal/fingers"
)

// Rand draws uniform integers in [0,n). *rand.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Option configures a Machine.
type Option func(*Machine)

// WithClock sets the time source used for state timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithRand sets the random source for target numbers.
func WithRand(r Rand) Option {
	return func(m *Machine) {
		if r != nil {
			m.rng = r
		}
	}
}

// Machine is the game state machine. It is not safe for concurrent use;
// the frame loop owns it and publishes Snapshots.
type Machine struct {
	cfg       Config
	now       func() time.Time
	rng       Rand
	state     State
	target    int
	shown     fingers.Shown
	enteredAt time.Time
	round     int
}

// New starts a game in Asking with a fresh target.
func New(cfg Config, opts ...Option) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Machine{
		cfg: cfg,
		now: time.Now,
		rng: globalRand{},
	}
	for _, opt := range opts {
		opt(m)
	}

	m.state = StateAsking
	m.target = m.drawTarget()
	m.enteredAt = m.now()
	return m, nil
}

// drawTarget picks a target uniformly from [TargetMin, TargetMax].
func (m *Machine) drawTarget() int {
	return m.cfg.TargetMin + m.rng.IntN(m.cfg.TargetMax-m.cfg.TargetMin+1)
}

// Tick feeds one frame's shown count and advance signal to the machine and
// fires at most one transition. Rules are checked in order:
//
//  1. Asking -> Correct when shown is known and equals the target.
//  2. Correct -> Asking once the celebration has lasted longer than
//     CelebrationDuration.
//  3. Correct -> Asking on advance, regardless of elapsed time.
//
// An unknown count observed while in Correct keeps the previous count.
// Advance outside Correct is ignored.
func (m *Machine) Tick(shown fingers.Shown, advance bool) (Transition, bool) {
	now := m.now()

	if shown.Known || m.state != StateCorrect {
		m.shown = shown
	}

	switch m.state {
	case StateAsking:
		if m.shown.Equals(m.target) {
			m.round++
			return m.enter(StateCorrect, TriggerMatch, now), true
		}
	case StateCorrect:
		if now.Sub(m.enteredAt) > m.cfg.CelebrationDuration {
			m.target = m.drawTarget()
			return m.enter(StateAsking, TriggerCelebrationElapsed, now), true
		}
		if advance {
			m.target = m.drawTarget()
			return m.enter(StateAsking, TriggerAdvance, now), true
		}
	}
	return Transition{}, false
}

// Advance applies a manual advance with the last observed count.
func (m *Machine) Advance() (Transition, bool) {
	return m.Tick(m.shown, true)
}

func (m *Machine) enter(to State, trigger Trigger, now time.Time) Transition {
	tr := Transition{
		From:    m.state,
		To:      to,
		Trigger: trigger,
		At:      now,
		Target:  m.target,
	}
	m.state = to
	m.enteredAt = now
	return tr
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Target returns the current target number.
func (m *Machine) Target() int { return m.target }

// Shown returns the last observed shown count.
func (m *Machine) Shown() fingers.Shown { return m.shown }

// EnteredAt returns when the current state was entered.
func (m *Machine) EnteredAt() time.Time { return m.enteredAt }

// Round returns how many targets have been matched.
func (m *Machine) Round() int { return m.round }

// Config returns the rules the machine was built with.
func (m *Machine) Config() Config { return m.cfg }

// Snapshot copies the public state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		State:     m.state,
		Target:    m.target,
		Shown:     m.shown,
		EnteredAt: m.enteredAt,
		Round:     m.round,
	}
}
