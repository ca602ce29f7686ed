package game

import (
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/ayusman/fingergame/internal/fingers"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time      { return c.t }
func (c *fakeClock) Add(d time.Duration) { c.t = c.t.Add(d) }

// seqRand returns the queued values in order, then repeats the last one.
type seqRand struct {
	vals []int
	i    int
}

func (r *seqRand) IntN(n int) int {
	v := r.vals[r.i]
	if r.i < len(r.vals)-1 {
		r.i++
	}
	return v % n
}

// newMachine builds a machine whose first target is first.
func newMachine(t *testing.T, clock *fakeClock, targets ...int) *Machine {
	t.Helper()
	vals := make([]int, len(targets))
	for i, v := range targets {
		vals[i] = v - 1
	}
	m, err := New(DefaultConfig(), WithClock(clock.Now), WithRand(&seqRand{vals: vals}))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return m
}

func TestNew_StartsAsking(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4)

	if m.State() != StateAsking {
		t.Errorf("State() = %s, want asking", m.State())
	}
	if m.Target() != 4 {
		t.Errorf("Target() = %d, want 4", m.Target())
	}
	if !m.EnteredAt().Equal(clock.Now()) {
		t.Errorf("EnteredAt() = %v, want %v", m.EnteredAt(), clock.Now())
	}
	if m.Shown().Known {
		t.Error("shown count should start unknown")
	}
	if m.Round() != 0 {
		t.Errorf("Round() = %d, want 0", m.Round())
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "zero duration", cfg: Config{TargetMin: 1, TargetMax: 10}},
		{name: "min zero", cfg: Config{CelebrationDuration: time.Second, TargetMin: 0, TargetMax: 10}},
		{name: "max eleven", cfg: Config{CelebrationDuration: time.Second, TargetMin: 1, TargetMax: 11}},
		{name: "inverted", cfg: Config{CelebrationDuration: time.Second, TargetMin: 6, TargetMax: 5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestTick_MatchEntersCorrect(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4, 7)

	clock.Add(500 * time.Millisecond)
	tr, ok := m.Tick(fingers.Of(4), false)

	if !ok {
		t.Fatal("expected a transition on match")
	}
	if tr.From != StateAsking || tr.To != StateCorrect || tr.Trigger != TriggerMatch {
		t.Errorf("transition = %+v", tr)
	}
	if m.State() != StateCorrect {
		t.Errorf("State() = %s, want correct", m.State())
	}
	if !m.EnteredAt().Equal(clock.Now()) {
		t.Error("state timestamp should reset on match")
	}
	if m.Target() != 4 {
		t.Errorf("target should not change on match, got %d", m.Target())
	}
	if m.Round() != 1 {
		t.Errorf("Round() = %d, want 1", m.Round())
	}
}

func TestTick_NoMatchStaysAsking(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4)

	inputs := []fingers.Shown{fingers.Unknown(), fingers.Of(0), fingers.Of(3), fingers.Of(5), fingers.Of(10)}
	for _, in := range inputs {
		clock.Add(time.Minute)
		if _, ok := m.Tick(in, false); ok {
			t.Errorf("unexpected transition for shown %v", in)
		}
	}
	if m.State() != StateAsking {
		t.Errorf("State() = %s, want asking", m.State())
	}
}

func TestTick_AskingNeverTimesOut(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4)

	clock.Add(time.Hour)
	if _, ok := m.Tick(fingers.Unknown(), false); ok {
		t.Error("asking should not transition on elapsed time")
	}
	if m.State() == StateTimeout {
		t.Error("timeout state must not be entered")
	}
}

func TestTick_CelebrationElapses(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4, 9)

	m.Tick(fingers.Of(4), false)

	clock.Add(3 * time.Second)
	if _, ok := m.Tick(fingers.Of(4), false); ok {
		t.Fatal("celebration should last longer than exactly 3s")
	}

	clock.Add(time.Millisecond)
	tr, ok := m.Tick(fingers.Of(4), false)
	if !ok {
		t.Fatal("expected transition after the celebration")
	}
	if tr.Trigger != TriggerCelebrationElapsed || tr.To != StateAsking {
		t.Errorf("transition = %+v", tr)
	}
	if m.Target() != 9 {
		t.Errorf("Target() = %d, want 9", m.Target())
	}
	if !m.EnteredAt().Equal(clock.Now()) {
		t.Error("state timestamp should reset on return to asking")
	}
}

func TestTick_ManualAdvance(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 2, 8)

	m.Tick(fingers.Of(2), false)

	clock.Add(time.Second)
	tr, ok := m.Tick(fingers.Of(2), true)
	if !ok {
		t.Fatal("advance should leave correct before the celebration ends")
	}
	if tr.Trigger != TriggerAdvance || tr.From != StateCorrect || tr.To != StateAsking {
		t.Errorf("transition = %+v", tr)
	}
	if m.Target() != 8 {
		t.Errorf("Target() = %d, want 8", m.Target())
	}
}

func TestTick_AdvanceIgnoredWhileAsking(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 5, 6)

	if _, ok := m.Tick(fingers.Of(1), true); ok {
		t.Error("advance must be ignored outside correct")
	}
	if m.Target() != 5 {
		t.Errorf("target changed to %d", m.Target())
	}
	if _, ok := m.Advance(); ok {
		t.Error("Advance() must be ignored outside correct")
	}
}

func TestTick_MatchAndAdvanceInSameTickFiresOnce(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 3, 6)

	tr, ok := m.Tick(fingers.Of(3), true)
	if !ok || tr.Trigger != TriggerMatch {
		t.Fatalf("transition = %+v, %v", tr, ok)
	}
	if m.State() != StateCorrect {
		t.Errorf("State() = %s, want correct", m.State())
	}
}

func TestTick_Idempotent(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4, 6)

	if _, ok := m.Tick(fingers.Of(4), false); !ok {
		t.Fatal("expected match")
	}
	// Same inputs, same instant.
	if _, ok := m.Tick(fingers.Of(4), false); ok {
		t.Error("second evaluation in the same tick must not fire")
	}
	if m.State() != StateCorrect || m.Round() != 1 {
		t.Errorf("state = %s round = %d", m.State(), m.Round())
	}

	clock.Add(4 * time.Second)
	if _, ok := m.Tick(fingers.Of(4), true); !ok {
		t.Fatal("expected return to asking")
	}
	if _, ok := m.Tick(fingers.Of(4), true); ok {
		t.Error("repeat evaluation must not fire again")
	}
}

func TestTick_UnknownRetainedWhileCorrect(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4, 6)

	m.Tick(fingers.Of(4), false)
	m.Tick(fingers.Unknown(), false)

	if got := m.Shown(); got != fingers.Of(4) {
		t.Errorf("Shown() = %v, want 4 kept while celebrating", got)
	}

	m.Tick(fingers.Of(2), false)
	if got := m.Shown(); got != fingers.Of(2) {
		t.Errorf("Shown() = %v, want 2", got)
	}
}

func TestTick_UnknownShownWhileAsking(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4)

	m.Tick(fingers.Of(2), false)
	m.Tick(fingers.Unknown(), false)

	if m.Shown().Known {
		t.Errorf("Shown() = %v, want unknown", m.Shown())
	}
}

func TestTarget_AlwaysInRange(t *testing.T) {
	clock := newFakeClock()
	m, err := New(DefaultConfig(), WithClock(clock.Now), WithRand(rand.New(rand.NewPCG(1, 2))))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	seen := make(map[int]bool)
	for i := 0; i < 2000; i++ {
		target := m.Target()
		if target < 1 || target > 10 {
			t.Fatalf("target %d out of [1,10]", target)
		}
		seen[target] = true

		m.Tick(fingers.Of(target), false)
		m.Advance()
	}

	for n := 1; n <= 10; n++ {
		if !seen[n] {
			t.Errorf("target %d never drawn", n)
		}
	}
}

func TestSnapshot(t *testing.T) {
	clock := newFakeClock()
	m := newMachine(t, clock, 4)

	m.Tick(fingers.Of(4), false)
	snap := m.Snapshot()

	if snap.State != StateCorrect || snap.Target != 4 || snap.Shown != fingers.Of(4) || snap.Round != 1 {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if !snap.EnteredAt.Equal(clock.Now()) {
		t.Errorf("EnteredAt = %v", snap.EnteredAt)
	}
}
