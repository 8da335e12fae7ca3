package metrics

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Counter struct {
	value atomic.Uint64
}

func (c *Counter) Inc() {
	c.value.Add(1)
}

func (c *Counter) Load() uint64 {
	return c.value.Load()
}

// CounterSet holds counters addressed by label path, e.g. "email/sent".
// The zero value is ready to use.
type CounterSet struct {
	mu       sync.RWMutex
	counters map[string]*Counter
}

func (s *CounterSet) counter(key string) *Counter {
	s.mu.RLock()
	c, ok := s.counters[key]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[key]; ok {
		return c
	}
	if s.counters == nil {
		s.counters = make(map[string]*Counter)
	}
	c = &Counter{}
	s.counters[key] = c
	return c
}

func (s *CounterSet) Inc(labels ...string) {
	s.counter(strings.Join(labels, "/")).Inc()
}

func (s *CounterSet) Get(labels ...string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.counters[strings.Join(labels, "/")]; ok {
		return c.Load()
	}
	return 0
}

func (s *CounterSet) Snapshot() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]uint64, len(s.counters))
	for k, c := range s.counters {
		out[k] = c.Load()
	}
	return out
}

type LatencySummary struct {
	Count  uint64 `json:"count"`
	MeanMs int64  `json:"meanMs"`
	MaxMs  int64  `json:"maxMs"`
}

// Latency accumulates observed durations.
type Latency struct {
	count uint64
	total int64
	max   int64
	mu    sync.Mutex
}

func (l *Latency) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.count++
	l.total += int64(d)
	if int64(d) > l.max {
		l.max = int64(d)
	}
}

func (l *Latency) Summary() LatencySummary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := LatencySummary{Count: l.count, MaxMs: time.Duration(l.max).Milliseconds()}
	if l.count > 0 {
		s.MeanMs = time.Duration(l.total / int64(l.count)).Milliseconds()
	}
	return s
}

type Timer struct {
	start time.Time
}

func StartTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
