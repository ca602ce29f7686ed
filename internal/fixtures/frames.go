// Package fixtures builds synthetic camera frames for tests that drive the
// capture pipeline without a webcam.
package fixtures

import (
	"gocv.io/x/gocv"
)

// Frame size used by the fixtures, small enough to keep encoding cheap.
const (
	FrameRows = 120
	FrameCols = 160
)

// SolidFrame returns a BGR frame filled with the given grey level.
func SolidFrame(grey uint8) *gocv.Mat {
	g := float64(grey)
	mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(g, g, g, 0), FrameRows, FrameCols, gocv.MatTypeCV8UC3)
	return &mat
}

// Sequence returns n frames that alternate between dark and light, so every
// consecutive pair reads as motion.
func Sequence(n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, 0, n)
	for i := 0; i < n; i++ {
		grey := uint8(32)
		if i%2 == 1 {
			grey = 224
		}
		frames = append(frames, SolidFrame(grey))
	}
	return frames
}

// CloseAll releases frames built by this package.
func CloseAll(frames []*gocv.Mat) {
	for _, f := range frames {
		if f != nil {
			f.Close()
		}
	}
}
