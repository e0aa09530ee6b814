package lib

import "sync/atomic"

// Histogram linear histogram with atomic counters, safe for
// concurrent recording. Buckets cover the [from, till] inclusive
// range; samples outside clamp into the first or last bucket.
type Histogram struct {
	from    uint64
	till    uint64
	width   uint64
	nbucket int64
	counts  []uint64
}

// NewHistogram return a histogram of `buckets` buckets over
// [from, till], till and buckets are cured to sane minimums.
func NewHistogram(from, till uint64, buckets int64) *Histogram {
	if till < from {
		till = from
	}
	if buckets < 1 {
		buckets = 1
	}
	h := &Histogram{from: from, till: till, nbucket: buckets}
	h.counts = make([]uint64, buckets)
	if till > from {
		h.width = (till - from + 1 + uint64(buckets) - 1) / uint64(buckets)
	}
	if h.width == 0 {
		h.width = 1
	}
	return h
}

// Record a sample, relaxed atomic add into its bucket.
func (h *Histogram) Record(v uint64) {
	atomic.AddUint64(&h.counts[h.indexfor(v)], 1)
}

// Histsnapshot point-in-time copy of the counters. Each count is an
// individually consistent load, the vector is not an atomic cut.
type Histsnapshot struct {
	From    uint64
	Till    uint64
	Width   uint64
	Buckets int64
	Counts  []uint64
}

// Snapshot copy out the counters.
func (h *Histogram) Snapshot() Histsnapshot {
	s := Histsnapshot{From: h.from, Till: h.till, Width: h.width, Buckets: h.nbucket}
	s.Counts = make([]uint64, h.nbucket)
	for i := range h.counts {
		s.Counts[i] = atomic.LoadUint64(&h.counts[i])
	}
	return s
}

// Samples total recorded in this snapshot.
func (s Histsnapshot) Samples() uint64 {
	total := uint64(0)
	for _, c := range s.Counts {
		total += c
	}
	return total
}

// Mean weighted average over the bucket midpoints, 0 when nothing was
// recorded. Clamped samples count toward their edge bucket's midpoint.
func (s Histsnapshot) Mean() float64 {
	total, sum := uint64(0), float64(0)
	for i, c := range s.Counts {
		mid := float64(s.From) + float64(uint64(i)*s.Width) + float64(s.Width)/2
		sum += float64(c) * mid
		total += c
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

func (h *Histogram) indexfor(v uint64) int64 {
	if v <= h.from {
		return 0
	}
	if v >= h.till {
		return h.nbucket - 1
	}
	idx := int64((v - h.from) / h.width)
	if idx >= h.nbucket {
		idx = h.nbucket - 1
	}
	return idx
}
