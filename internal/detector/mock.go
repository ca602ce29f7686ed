package detector

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu    sync.Mutex
	hands []HandLandmarks
	err   error
	calls int
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetHands sets the hands that will be returned by Detect.
func (m *MockDetector) SetHands(hands []HandLandmarks) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hands = hands
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Detect returns the pre-configured hands or error.
func (m *MockDetector) Detect(frame *gocv.Mat) ([]HandLandmarks, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.hands, nil
}

// Close is a no-op for the mock detector.
func (m *MockDetector) Close() error {
	return nil
}

// FingerMask selects which fingers are extended in a synthetic pose.
type FingerMask uint8

const (
	MaskThumb FingerMask = 1 << iota
	MaskIndex
	MaskMiddle
	MaskRing
	MaskPinky

	MaskNone FingerMask = 0
	MaskAll             = MaskThumb | MaskIndex | MaskMiddle | MaskRing | MaskPinky
)

// FirstN returns a mask with the first n fingers extended, counting from the thumb.
func FirstN(n int) FingerMask {
	var m FingerMask
	for i := 0; i < n && i < 5; i++ {
		m |= 1 << i
	}
	return m
}

// PoseLandmarks returns an upright, palm-facing hand with the fingers in mask
// extended. handedness is "Right" or "Left"; a right hand has its wrist left
// of the middle fingertip and the thumb pointing toward smaller x, a left hand
// is the horizontal mirror image.
func PoseLandmarks(mask FingerMask, handedness string) HandLandmarks {
	h := HandLandmarks{
		Points:     make([]Point3D, NumLandmarks),
		Handedness: "Right",
		Score:      0.95,
	}

	h.Points[Wrist] = Point3D{X: 0.48, Y: 0.85}

	h.Points[ThumbCMC] = Point3D{X: 0.44, Y: 0.80}
	h.Points[ThumbMCP] = Point3D{X: 0.40, Y: 0.75}
	h.Points[ThumbIP] = Point3D{X: 0.36, Y: 0.70}
	if mask&MaskThumb != 0 {
		h.Points[ThumbTip] = Point3D{X: 0.32, Y: 0.66}
	} else {
		// Folded across the palm.
		h.Points[ThumbTip] = Point3D{X: 0.42, Y: 0.68}
	}

	fingers := []struct {
		bit                FingerMask
		x                  float64
		mcp, pip, dip, tip int
	}{
		{MaskIndex, 0.45, IndexMCP, IndexPIP, IndexDIP, IndexTip},
		{MaskMiddle, 0.50, MiddleMCP, MiddlePIP, MiddleDIP, MiddleTip},
		{MaskRing, 0.55, RingMCP, RingPIP, RingDIP, RingTip},
		{MaskPinky, 0.60, PinkyMCP, PinkyPIP, PinkyDIP, PinkyTip},
	}
	for _, f := range fingers {
		h.Points[f.mcp] = Point3D{X: f.x, Y: 0.65}
		h.Points[f.pip] = Point3D{X: f.x, Y: 0.55, Z: -0.01}
		if mask&f.bit != 0 {
			h.Points[f.dip] = Point3D{X: f.x, Y: 0.47, Z: -0.01}
			h.Points[f.tip] = Point3D{X: f.x, Y: 0.40, Z: -0.02}
		} else {
			h.Points[f.dip] = Point3D{X: f.x, Y: 0.60, Z: -0.04}
			h.Points[f.tip] = Point3D{X: f.x, Y: 0.62, Z: -0.03}
		}
	}

	if handedness == "Left" {
		return MirrorX(h)
	}
	h.Handedness = handedness
	return h
}

// MirrorX reflects a hand horizontally (x -> 1-x) and swaps its handedness label.
func MirrorX(h HandLandmarks) HandLandmarks {
	out := h.Clone()
	for i := range out.Points {
		out.Points[i].X = 1 - out.Points[i].X
	}
	switch h.Handedness {
	case "Right":
		out.Handedness = "Left"
	case "Left":
		out.Handedness = "Right"
	}
	return out
}

// OpenPalmLandmarks returns a right hand with all five fingers extended.
func OpenPalmLandmarks() HandLandmarks {
	return PoseLandmarks(MaskAll, "Right")
}

// FistLandmarks returns a right hand with every finger folded.
func FistLandmarks() HandLandmarks {
	return PoseLandmarks(MaskNone, "Right")
}
