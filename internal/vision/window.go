package vision

// MotionWindow is a fixed-capacity FIFO of per-frame motion magnitudes.
// Pushing into a full window evicts the oldest sample.
// Not safe for concurrent use; the owning session serializes access.
type MotionWindow struct {
	buffer []float64
	size   int
	start  int
	count  int
}

// NewMotionWindow creates a window holding at most size samples
func NewMotionWindow(size int) *MotionWindow {
	if size < 1 {
		size = 1
	}
	return &MotionWindow{
		buffer: make([]float64, size),
		size:   size,
	}
}

// Push appends v, evicting the oldest sample when full
func (w *MotionWindow) Push(v float64) {
	if w.count < w.size {
		w.buffer[(w.start+w.count)%w.size] = v
		w.count++
		return
	}
	w.buffer[w.start] = v
	w.start = (w.start + 1) % w.size
}

// Mean returns the average of the held samples, 0 when empty
func (w *MotionWindow) Mean() float64 {
	if w.count == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < w.count; i++ {
		sum += w.buffer[(w.start+i)%w.size]
	}
	return sum / float64(w.count)
}

// Values returns the samples oldest first
func (w *MotionWindow) Values() []float64 {
	out := make([]float64, w.count)
	for i := range out {
		out[i] = w.buffer[(w.start+i)%w.size]
	}
	return out
}

// Len returns the number of samples held
func (w *MotionWindow) Len() int {
	return w.count
}

// Cap returns the window capacity
func (w *MotionWindow) Cap() int {
	return w.size
}

// Clear empties the window
func (w *MotionWindow) Clear() {
	w.start = 0
	w.count = 0
}
