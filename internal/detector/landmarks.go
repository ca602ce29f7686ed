// Package detector provides the hand pose source: the 21-point landmark model,
// the Detector interface and its MediaPipe and mock implementations.
package detector

import (
	"errors"
	"fmt"
)

// Hand landmark indices following MediaPipe convention.
// See: https://developers.google.com/mediapipe/solutions/vision/hand_landmarker
const (
	Wrist        = 0
	ThumbCMC     = 1
	ThumbMCP     = 2
	ThumbIP      = 3
	ThumbTip     = 4
	IndexMCP     = 5
	IndexPIP     = 6
	IndexDIP     = 7
	IndexTip     = 8
	MiddleMCP    = 9
	MiddlePIP    = 10
	MiddleDIP    = 11
	MiddleTip    = 12
	RingMCP      = 13
	RingPIP      = 14
	RingDIP      = 15
	RingTip      = 16
	PinkyMCP     = 17
	PinkyPIP     = 18
	PinkyDIP     = 19
	PinkyTip     = 20
	NumLandmarks = 21
)

// ErrInvalidHandData is returned for a hand that does not carry exactly
// NumLandmarks points.
var ErrInvalidHandData = errors.New("invalid hand data")

// Point3D is a landmark position in normalized frame coordinates.
// X and Y are in [0,1] relative to the frame; Z is optional depth.
type Point3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// HandLandmarks is one detected hand as produced for a single frame.
// Hands carry no identity across frames.
type HandLandmarks struct {
	Points     []Point3D `json:"points"`
	Handedness string    `json:"handedness"` // "Left" or "Right" as labelled by the pose model
	Score      float64   `json:"score"`
}

// Validate reports whether the hand has the full 21-point topology.
func (h *HandLandmarks) Validate() error {
	if h == nil {
		return fmt.Errorf("%w: nil hand", ErrInvalidHandData)
	}
	if len(h.Points) != NumLandmarks {
		return fmt.Errorf("%w: got %d landmarks, want %d", ErrInvalidHandData, len(h.Points), NumLandmarks)
	}
	return nil
}

// Clone returns a deep copy of the hand.
func (h HandLandmarks) Clone() HandLandmarks {
	out := h
	out.Points = append([]Point3D(nil), h.Points...)
	return out
}
