// Package fingers derives finger counts from hand landmarks.
//
// The geometry assumes an upright hand with the palm facing the camera:
// fingertips point along the configured up axis and the thumb is judged
// along the axis perpendicular to it. Hands held sideways or upside down
// relative to Options.Up are miscounted.
package fingers

import (
	"fmt"
	"strings"

	"github.com/ayusman/fingergame/internal/detector"
)

// FingersPerHand is the most a single hand can show.
const FingersPerHand = 5

// Up names the frame direction fingertips point to when extended.
type Up int

const (
	// UpNegY is image-up (smaller y is higher in the frame).
	UpNegY Up = iota
	// UpPosY is image-down, a hand held upside down.
	UpPosY
	// UpNegX is image-left.
	UpNegX
	// UpPosX is image-right.
	UpPosX
)

// String returns the config name of the axis.
func (u Up) String() string {
	switch u {
	case UpNegY:
		return "up"
	case UpPosY:
		return "down"
	case UpNegX:
		return "left"
	case UpPosX:
		return "right"
	default:
		return fmt.Sprintf("Up(%d)", int(u))
	}
}

// ParseUp maps "up", "down", "left" or "right" to an Up axis.
func ParseUp(s string) (Up, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "up":
		return UpNegY, nil
	case "down":
		return UpPosY, nil
	case "left":
		return UpNegX, nil
	case "right":
		return UpPosX, nil
	default:
		return UpNegY, fmt.Errorf("unknown up axis: %q", s)
	}
}

// Options controls how landmarks are interpreted.
type Options struct {
	// Up is the direction extended fingers point to. The zero value is image-up.
	Up Up
}

// Laterality is the hand side inferred from landmark geometry.
type Laterality string

const (
	Right Laterality = "right"
	Left  Laterality = "left"
)

// fingerPairs lists (tip, knuckle) indices for the four non-thumb fingers.
var fingerPairs = [4][2]int{
	{detector.IndexTip, detector.IndexPIP},
	{detector.MiddleTip, detector.MiddlePIP},
	{detector.RingTip, detector.RingPIP},
	{detector.PinkyTip, detector.PinkyPIP},
}

// project maps a landmark into hand space: up grows toward the fingertips,
// lateral is the thumb axis. For UpNegY this is (-y, x).
func (o Options) project(p detector.Point3D) (up, lateral float64) {
	switch o.Up {
	case UpPosY:
		return p.Y, -p.X
	case UpNegX:
		return -p.X, -p.Y
	case UpPosX:
		return p.X, p.Y
	default:
		return -p.Y, p.X
	}
}

// Laterality classifies the hand using the mirrored-camera convention: a
// wrist lying before the middle fingertip on the lateral axis is a right hand.
func (o Options) Laterality(hand *detector.HandLandmarks) (Laterality, error) {
	if err := hand.Validate(); err != nil {
		return "", err
	}
	return o.laterality(hand), nil
}

func (o Options) laterality(hand *detector.HandLandmarks) Laterality {
	_, wrist := o.project(hand.Points[detector.Wrist])
	_, middle := o.project(hand.Points[detector.MiddleTip])
	if wrist < middle {
		return Right
	}
	return Left
}

// Count returns the number of extended fingers on one hand, in [0,5].
//
// A non-thumb finger is extended when its tip lies strictly beyond its PIP
// knuckle along the up axis. The thumb is extended when its tip lies beyond
// the IP joint on the outer side for the hand's laterality.
func Count(hand *detector.HandLandmarks, opts Options) (int, error) {
	if err := hand.Validate(); err != nil {
		return 0, err
	}

	count := 0
	for _, pair := range fingerPairs {
		tip, _ := opts.project(hand.Points[pair[0]])
		knuckle, _ := opts.project(hand.Points[pair[1]])
		if tip > knuckle {
			count++
		}
	}

	_, thumbTip := opts.project(hand.Points[detector.ThumbTip])
	_, thumbIP := opts.project(hand.Points[detector.ThumbIP])
	switch opts.laterality(hand) {
	case Right:
		if thumbTip < thumbIP {
			count++
		}
	case Left:
		if thumbTip > thumbIP {
			count++
		}
	}

	return count, nil
}
