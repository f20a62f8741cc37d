package telemetry

import (
	"math"
	"sync"
	"sync/atomic"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// histogram keeps non-cumulative bucket counts; export makes them cumulative.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits, updated by CAS
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 {
	return atomic.LoadInt64(&h.count)
}

func (h *histogram) Sum() float64 {
	return math.Float64frombits(atomic.LoadUint64(&h.sum))
}

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	raw := make([]int64, len(h.bucketCounts))
	copy(raw, h.bucketCounts)
	h.mu.Unlock()

	var running int64
	for i, c := range raw {
		running += c
		raw[i] = running
	}
	return raw
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// labeled is a set of series of one metric keyed by joined label values.
type labeled[T any] struct {
	mu      sync.RWMutex
	items   map[string]T
	newItem func() T
}

func newLabeled[T any](mk func() T) *labeled[T] {
	return &labeled[T]{items: make(map[string]T), newItem: mk}
}

func (l *labeled[T]) get(key string) T {
	l.mu.RLock()
	v, ok := l.items[key]
	l.mu.RUnlock()
	if ok {
		return v
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok = l.items[key]; !ok {
		v = l.newItem()
		l.items[key] = v
	}
	return v
}

func (l *labeled[T]) snapshot() map[string]T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cp := make(map[string]T, len(l.items))
	for k, v := range l.items {
		cp[k] = v
	}
	return cp
}
