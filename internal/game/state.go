// Package game implements the finger-counting game state machine.
package game

import (
	"errors"
	"fmt"
	"time"

	"github.com/ayusman/fingergame/internal/fingers"
)

// State is the phase of the game.
type State string

const (
	// StateAsking shows a target number and waits for a matching count.
	StateAsking State = "asking"
	// StateCorrect celebrates a match until the celebration ends or the
	// player advances.
	StateCorrect State = "correct"
	// StateTimeout is reserved for an answer timeout. No transition enters it.
	StateTimeout State = "timeout"
)

// Trigger names what caused a transition.
type Trigger string

const (
	TriggerMatch              Trigger = "match"
	TriggerCelebrationElapsed Trigger = "celebration_elapsed"
	TriggerAdvance            Trigger = "advance"
)

// MaxTarget is the largest target two hands can show.
const MaxTarget = 10

// ErrInvalidConfig is returned by New for an unusable Config.
var ErrInvalidConfig = errors.New("invalid game config")

// Config holds the game rules.
type Config struct {
	// CelebrationDuration is how long Correct lasts before a new target.
	CelebrationDuration time.Duration
	// TargetMin and TargetMax bound the target number, inclusive.
	TargetMin int
	TargetMax int
}

// DefaultConfig returns the standard rules: 3s celebration, targets 1..10.
func DefaultConfig() Config {
	return Config{
		CelebrationDuration: 3 * time.Second,
		TargetMin:           1,
		TargetMax:           MaxTarget,
	}
}

// Validate checks the target range and celebration duration.
func (c Config) Validate() error {
	if c.CelebrationDuration <= 0 {
		return fmt.Errorf("%w: celebration duration must be positive, got %s", ErrInvalidConfig, c.CelebrationDuration)
	}
	if c.TargetMin < 1 || c.TargetMax > MaxTarget || c.TargetMin > c.TargetMax {
		return fmt.Errorf("%w: target range [%d,%d] must lie within [1,%d]", ErrInvalidConfig, c.TargetMin, c.TargetMax, MaxTarget)
	}
	return nil
}

// Transition records a state change.
type Transition struct {
	From    State     `json:"from"`
	To      State     `json:"to"`
	Trigger Trigger   `json:"trigger"`
	At      time.Time `json:"at"`
	Target  int       `json:"target"` // target after the transition
}

// Snapshot is a read-only copy of the machine for presenters.
type Snapshot struct {
	State     State         `json:"state"`
	Target    int           `json:"target"`
	Shown     fingers.Shown `json:"shown"`
	EnteredAt time.Time     `json:"entered_at"`
	Round     int           `json:"round"`
}
