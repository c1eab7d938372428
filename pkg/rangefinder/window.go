package rangefinder

// Window holds the last N raw samples and filters new ones to the minimum
// over the window, rejecting the ultrasonic sensor's spurious long readings.
type Window struct {
	samples []int
	next    int
	full    bool
}

func NewWindow(size int) *Window {
	if size < 1 {
		panic("rangefinder: window must hold at least one sample")
	}
	return &Window{samples: make([]int, size)}
}

// Filter returns the minimum of raw and the samples in the window, then pushes
// raw, dropping the oldest sample once the window is full.
func (w *Window) Filter(raw int) int {
	min := raw
	n := w.next
	if w.full {
		n = len(w.samples)
	}
	for _, s := range w.samples[:n] {
		if s < min {
			min = s
		}
	}
	w.Push(raw)
	return min
}

// Push records raw without filtering it.
func (w *Window) Push(raw int) {
	w.samples[w.next] = raw
	w.next++
	if w.next == len(w.samples) {
		w.next = 0
		w.full = true
	}
}

// Reset discards the window's history.
func (w *Window) Reset() {
	w.next = 0
	w.full = false
}

func (w *Window) Size() int {
	return len(w.samples)
}
