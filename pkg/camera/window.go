package camera

// deltaWindow holds the last DeltaWindowSize inter-frame deltas in seconds,
// evicting the oldest first.
type deltaWindow struct {
	buf   [DeltaWindowSize]float64
	start int
	n     int
}

func (w *deltaWindow) push(seconds float64) {
	if w.n == len(w.buf) {
		w.buf[w.start] = seconds
		w.start = (w.start + 1) % len(w.buf)
		return
	}
	w.buf[(w.start+w.n)%len(w.buf)] = seconds
	w.n++
}

func (w *deltaWindow) len() int {
	return w.n
}

func (w *deltaWindow) reset() {
	*w = deltaWindow{}
}

// values returns the deltas oldest first.
func (w *deltaWindow) values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// rate is len/sum, or 0 for an empty window.
func (w *deltaWindow) rate() float64 {
	if w.n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < w.n; i++ {
		sum += w.buf[(w.start+i)%len(w.buf)]
	}
	if sum <= 0 {
		return 0
	}
	return float64(w.n) / sum
}
