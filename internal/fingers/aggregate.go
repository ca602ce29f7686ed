package fingers

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ayusman/fingergame/internal/detector"
)

// Shown is the finger count shown across all hands in a frame.
// The zero value is Unknown.
type Shown struct {
	Count int
	Known bool
}

// Unknown is the sentinel for a frame with no countable hand.
func Unknown() Shown {
	return Shown{}
}

// Of returns a known count.
func Of(n int) Shown {
	return Shown{Count: n, Known: true}
}

// Equals reports whether the shown count is known and equal to n.
func (s Shown) Equals(n int) bool {
	return s.Known && s.Count == n
}

// String renders the count, or "?" when unknown.
func (s Shown) String() string {
	if !s.Known {
		return "?"
	}
	return strconv.Itoa(s.Count)
}

// MarshalJSON encodes a known count as a number and Unknown as null.
func (s Shown) MarshalJSON() ([]byte, error) {
	if !s.Known {
		return []byte("null"), nil
	}
	return json.Marshal(s.Count)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (s *Shown) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*s = Unknown()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("shown count: %w", err)
	}
	*s = Of(n)
	return nil
}

// Aggregate sums Count over every hand in a frame. The sum is not clamped, so
// two open hands show 10.
//
// No hands yields Unknown. Hands that fail validation are skipped and their
// errors are joined into the returned error; the remaining hands still count.
// If no hand could be counted the result is Unknown.
func Aggregate(hands []detector.HandLandmarks, opts Options) (Shown, error) {
	if len(hands) == 0 {
		return Unknown(), nil
	}

	var (
		total   int
		counted int
		errs    []error
	)
	for i := range hands {
		n, err := Count(&hands[i], opts)
		if err != nil {
			errs = append(errs, fmt.Errorf("hand %d: %w", i, err))
			continue
		}
		total += n
		counted++
	}

	if counted == 0 {
		return Unknown(), errors.Join(errs...)
	}
	return Of(total), errors.Join(errs...)
}
