package server

import (
	"fmt"
	"net/http"
	"sync"
)

// frameBuffer holds the latest encoded frame. Readers wait on notify, which
// is closed and replaced on every publish.
type frameBuffer struct {
	mu      sync.Mutex
	jpeg    []byte
	seq     uint64
	notify  chan struct{}
	done    chan struct{}
	closed  bool
	viewers int
}

func newFrameBuffer() *frameBuffer {
	return &frameBuffer{
		notify: make(chan struct{}),
		done:   make(chan struct{}),
	}
}

func (b *frameBuffer) publish(jpeg []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.jpeg = jpeg
	b.seq++
	close(b.notify)
	b.notify = make(chan struct{})
}

// latest returns the current frame, its sequence number and a channel that
// is closed on the next publish.
func (b *frameBuffer) latest() ([]byte, uint64, <-chan struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.jpeg, b.seq, b.notify
}

func (b *frameBuffer) watch(delta int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.viewers += delta
}

func (b *frameBuffer) watchers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.viewers
}

// close ends every open stream. Later publishes are dropped.
func (b *frameBuffer) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.jpeg = nil
	close(b.done)
}

func (b *frameBuffer) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// StreamHandler serves the presented frames as MJPEG.
type StreamHandler struct {
	frames *frameBuffer
}

func newStreamHandler(frames *frameBuffer) *StreamHandler {
	return &StreamHandler{frames: frames}
}

// ServeHTTP streams each new frame until the client goes away or the
// server closes.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.frames.isClosed() {
		http.Error(w, "Stream closed", http.StatusServiceUnavailable)
		return
	}

	h.frames.watch(1)
	defer h.frames.watch(-1)

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	if flusher != nil {
		flusher.Flush()
	}

	var sent uint64
	for {
		jpeg, seq, next := h.frames.latest()
		if seq != sent && jpeg != nil {
			if err := writePart(w, jpeg); err != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
			sent = seq
		}

		select {
		case <-r.Context().Done():
			return
		case <-h.frames.done:
			return
		case <-next:
		}
	}
}

func writePart(w http.ResponseWriter, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(jpeg)); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := fmt.Fprint(w, "\r\n")
	return err
}
