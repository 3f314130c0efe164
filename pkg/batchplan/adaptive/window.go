package adaptive

import (
	"time"

	"github.com/eapache/queue"
)

// durationWindow is a fixed-capacity sliding window over recent batch
// durations. When full, observing a new duration evicts the oldest.
// Not safe for concurrent use; the controller guards it with its lock.
type durationWindow struct {
	q        *queue.Queue
	capacity int
	sum      time.Duration
}

func newDurationWindow(capacity int) *durationWindow {
	return &durationWindow{
		q:        queue.New(),
		capacity: capacity,
	}
}

// observe records one batch duration, evicting the oldest entry when
// the window is at capacity.
func (w *durationWindow) observe(d time.Duration) {
	if w.q.Length() >= w.capacity {
		w.sum -= w.q.Remove().(time.Duration)
	}
	w.q.Add(d)
	w.sum += d
}

// average returns the mean of the windowed durations, zero when empty.
func (w *durationWindow) average() time.Duration {
	n := w.q.Length()
	if n == 0 {
		return 0
	}
	return w.sum / time.Duration(n)
}

// depth returns the number of durations currently held.
func (w *durationWindow) depth() int {
	return w.q.Length()
}
