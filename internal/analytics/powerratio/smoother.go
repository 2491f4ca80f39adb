package powerratio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// SmoothedRatioRecord is a RatioRecord with the trailing mean of its entity.
type SmoothedRatioRecord struct {
	RatioRecord
	// Smoothed is the mean of the last Samples admitted ratios of the same
	// entity, this record included when admitted. NaN when Samples is 0.
	Smoothed float64
	Samples  int
}

// Defined reports whether a smoothed value exists for the record.
func (s SmoothedRatioRecord) Defined() bool {
	return s.Samples > 0
}

// RollingSmoother computes a causal moving average per entity.
type RollingSmoother struct {
	// Window is the maximum number of trailing ratios averaged.
	Window int
	Policy NonFinitePolicy
	// Parallelism > 1 smooths that many entities concurrently.
	Parallelism int
}

// NewRollingSmoother returns a smoother with the given window and the
// default non-finite policy.
func NewRollingSmoother(window int) RollingSmoother {
	return RollingSmoother{Window: window, Policy: DefaultNonFinitePolicy()}
}

// Smooth returns one SmoothedRatioRecord per input record, in input order.
// The first record of an entity averages only itself; later ones average
// up to Window values. A record never sees values of later records or of
// other entities.
func (s RollingSmoother) Smooth(ratios []RatioRecord) []SmoothedRatioRecord {
	size := s.Window
	if size < 1 {
		size = 1
	}

	out := make([]SmoothedRatioRecord, len(ratios))
	order, groups := partition(ratios, func(r RatioRecord) string { return r.EntityID })

	forEachEntity(order, groups, s.Parallelism, func(_ int, _ string, idx []int) {
		w := newWindow(size)
		for _, i := range idx {
			if v, ok := s.Policy.Admit(ratios[i].Ratio); ok {
				w.push(v)
			}
			out[i] = SmoothedRatioRecord{
				RatioRecord: ratios[i],
				Smoothed:    w.mean(),
				Samples:     w.len(),
			}
		}
	})

	return out
}

// window is a fixed-capacity FIFO of the most recent values.
type window struct {
	buf   []float64
	next  int
	count int
}

func newWindow(size int) *window {
	return &window{buf: make([]float64, size)}
}

func (w *window) push(v float64) {
	w.buf[w.next] = v
	w.next = (w.next + 1) % len(w.buf)
	if w.count < len(w.buf) {
		w.count++
	}
}

func (w *window) len() int {
	return w.count
}

// mean re-sums the live slots; no running sum is kept.
func (w *window) mean() float64 {
	if w.count == 0 {
		return math.NaN()
	}
	return floats.Sum(w.buf[:w.count]) / float64(w.count)
}
