package nuimo

import (
	"sync"
	"time"
)

// writeDebounceWindow bounds the transmission rate: a request arriving while
// a write is unacknowledged and the last transmission is younger than this
// window is deferred until the acknowledgment.
const writeDebounceWindow = time.Second

// displayRequest is one pending LED matrix write.
type displayRequest struct {
	matrix     LedMatrix
	interval   time.Duration
	brightness float64
	fading     bool
	suppress   bool
}

// matrixWriter schedules LED matrix writes toward the controller. The
// display characteristic acknowledges every write; requests arriving inside
// the debounce window of an unacknowledged write replace each other in a
// single deferred slot so only the newest frame is transmitted once the
// acknowledgment arrives.
//
// Safe for use from any goroutine; completion callbacks arrive from the
// manager event loop while requests may come from the application. The
// failed callback runs outside the writer lock, so it may schedule another
// frame.
type matrixWriter struct {
	mu sync.Mutex

	send   func(payload []byte) error
	failed func(err error)
	now    func() time.Time

	inFlight     bool
	pending      *displayRequest
	lastMatrix   LedMatrix
	lastInterval time.Duration
	lastAt       time.Time
	wroteOnce    bool
}

func newMatrixWriter(send func(payload []byte) error, failed func(err error)) *matrixWriter {
	return &matrixWriter{send: send, failed: failed, now: time.Now}
}

// Write schedules one display request. A duplicate of the last transmitted
// frame is dropped while that frame is still displayed, when the request
// asks for suppression; a non-positive interval means the frame stays until
// replaced, so its duplicates are dropped indefinitely.
func (w *matrixWriter) Write(req displayRequest) {
	w.mu.Lock()
	if req.suppress && w.wroteOnce &&
		req.matrix.Equal(w.lastMatrix) &&
		(w.lastInterval <= 0 || w.now().Sub(w.lastAt) < w.lastInterval) {
		w.mu.Unlock()
		return
	}
	if w.inFlight && w.now().Sub(w.lastAt) < writeDebounceWindow {
		// Only the newest frame matters; an older deferred frame is stale.
		w.pending = &req
		w.mu.Unlock()
		return
	}
	err := w.transmitLocked(req)
	w.mu.Unlock()
	if err != nil {
		w.failed(err)
	}
}

// transmitLocked sends one frame. Caller holds mu; send must not block. A
// frame the transport refuses is dropped, not retried.
func (w *matrixWriter) transmitLocked(req displayRequest) error {
	w.lastMatrix = req.matrix
	w.lastInterval = req.interval
	w.lastAt = w.now()
	w.wroteOnce = true
	if err := w.send(encodeMatrix(req.matrix, req.brightness, req.interval, req.fading)); err != nil {
		return err
	}
	w.inFlight = true
	return nil
}

// writeCompleted is called when the in-flight write is acknowledged. A
// deferred frame is transmitted now.
func (w *matrixWriter) writeCompleted() {
	w.mu.Lock()
	w.inFlight = false
	var err error
	if w.pending != nil {
		req := *w.pending
		w.pending = nil
		err = w.transmitLocked(req)
	}
	w.mu.Unlock()
	if err != nil {
		w.failed(err)
	}
}

// writeFailed is called when the in-flight write is rejected. The frame is
// dropped without retry, and a deferred frame is dropped with it.
func (w *matrixWriter) writeFailed() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	w.pending = nil
}

// reset drops all transmission history, typically on disconnect.
func (w *matrixWriter) reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false
	w.pending = nil
	w.wroteOnce = false
}
