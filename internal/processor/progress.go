package processor

import (
	"sync"
	"sync/atomic"
)

const (
	throttleThreshold = 1000
	throttleEvery     = 100
)

// tracker counts processed entries and forwards positions to the sink. Once
// the total reaches throttleThreshold only every throttleEvery-th position
// (and the last one) is published. Published positions never go backwards.
type tracker struct {
	sink  ProgressSink
	total uint64
	count atomic.Uint64

	mu    sync.Mutex
	shown uint64
}

func newTracker(sink ProgressSink, total uint64) *tracker {
	if sink != nil {
		sink.SetTotal(total)
	}
	return &tracker{sink: sink, total: total}
}

func (t *tracker) step() {
	n := t.count.Add(1)
	if t.sink == nil {
		return
	}
	if t.total >= throttleThreshold && n%throttleEvery != 0 && n != t.total {
		return
	}
	t.publish(n)
}

func (t *tracker) publish(n uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n <= t.shown {
		return
	}
	t.shown = n
	t.sink.SetPosition(n)
}

// finish publishes the final count regardless of throttling.
func (t *tracker) finish() {
	if t.sink == nil {
		return
	}
	t.publish(t.count.Load())
}

func (t *tracker) processed() uint64 {
	return t.count.Load()
}
