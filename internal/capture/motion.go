package capture

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

const (
	// BlurKernel is the side of the Gaussian kernel applied before differencing.
	BlurKernel = 21
	// PixelDelta is the per-pixel grey-level change that counts as changed.
	PixelDelta = 25
	// DefaultMotionThreshold is the percentage of changed pixels that counts as motion.
	DefaultMotionThreshold = 1.0
)

// MotionDetector decides whether a frame differs from a reference frame.
// Detect compares consecutive frames; Changed compares against the baseline
// set with SetBaseline, so slow drift accumulates until it counts. The game
// uses the baseline form to skip hand inference while the scene is still.
type MotionDetector struct {
	mu        sync.Mutex
	threshold float64
	// prev is the blurred reference frame, nil until primed.
	prev   *gocv.Mat
	primed bool
}

// NewMotionDetector returns a detector that reports motion when more than
// threshold percent of the pixels change between frames.
func NewMotionDetector(threshold float64) *MotionDetector {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	return &MotionDetector{threshold: threshold}
}

// Detect reports whether frame differs from the previous frame and the
// percentage of changed pixels, then makes frame the new reference. The
// first frame after construction or Reset only primes the detector and
// always reports true so the caller runs inference on it.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compare(frame, true)
}

// Changed reports whether frame differs from the baseline without moving
// the baseline. An unprimed detector always reports true.
func (m *MotionDetector) Changed(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.compare(frame, false)
}

// SetBaseline makes frame the reference for later Changed calls.
func (m *MotionDetector) SetBaseline(frame *gocv.Mat) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if frame == nil || frame.Empty() {
		return
	}
	blurred := prepare(frame)
	m.replace(blurred)
}

func (m *MotionDetector) compare(frame *gocv.Mat, advance bool) (bool, float64) {
	if frame == nil || frame.Empty() {
		return false, 0
	}

	blurred := prepare(frame)

	if !m.primed || m.prev.Rows() != blurred.Rows() || m.prev.Cols() != blurred.Cols() {
		m.replace(blurred)
		return true, 100
	}

	changed := changedPercent(blurred, *m.prev)
	if advance {
		m.replace(blurred)
	} else {
		blurred.Close()
	}

	return changed > m.threshold, changed
}

// replace takes ownership of blurred as the new reference.
func (m *MotionDetector) replace(blurred gocv.Mat) {
	m.release()
	m.prev = &blurred
	m.primed = true
}

// prepare returns a grey, blurred copy of frame. The caller closes it.
func prepare(frame *gocv.Mat) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Point{X: BlurKernel, Y: BlurKernel}, 0, 0, gocv.BorderDefault)
	return blurred
}

func changedPercent(a, b gocv.Mat) float64 {
	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(a, b, &diff)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.Threshold(diff, &mask, PixelDelta, 255, gocv.ThresholdBinary)

	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return 0
	}
	return float64(gocv.CountNonZero(mask)) / float64(total) * 100
}

// Reset forgets the reference frame.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the reference frame. The detector may be used again afterwards.
func (m *MotionDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
	return nil
}

func (m *MotionDetector) release() {
	if m.prev != nil {
		m.prev.Close()
		m.prev = nil
	}
	m.primed = false
}

// SetThreshold changes the motion threshold. Values <= 0 are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threshold = threshold
}

// Threshold returns the current motion threshold.
func (m *MotionDetector) Threshold() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threshold
}
