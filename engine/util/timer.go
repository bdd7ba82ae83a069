package util

import (
	"fmt"
	"strings"
	"time"
)

// stage accumulates wall clock samples for one named pipeline step.
type stage struct {
	name  string
	last  time.Duration
	total time.Duration
	min   time.Duration
	max   time.Duration
	count int64
}

func (s *stage) record(d time.Duration) {
	s.last = d
	s.total += d
	s.count++
	if s.min == 0 || d < s.min {
		s.min = d
	}
	if d > s.max {
		s.max = d
	}
}

func (s *stage) String() string {
	avg := s.total / time.Duration(s.count)
	if s.count == 1 {
		return fmt.Sprintf("%s: %.2fms", s.name, ms(s.last))
	}
	return fmt.Sprintf("%s: last %.2fms, avg %.2fms, min %.2fms, max %.2fms (%d runs)",
		s.name, ms(s.last), ms(avg), ms(s.min), ms(s.max), s.count)
}

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

// Timer measures named stages. Stages print in first-use order, repeated
// stages aggregate.
type Timer struct {
	order  []string
	stages map[string]*stage
}

func NewTimer() *Timer {
	return &Timer{stages: make(map[string]*stage)}
}

// Start begins a measurement and returns the function that ends it. The
// returned stop reports the elapsed time for this run.
func (t *Timer) Start(name string) func() time.Duration {
	s, ok := t.stages[name]
	if !ok {
		s = &stage{name: name}
		t.stages[name] = s
		t.order = append(t.order, name)
	}
	begin := time.Now()
	return func() time.Duration {
		elapsed := time.Since(begin)
		s.record(elapsed)
		return elapsed
	}
}

func (t *Timer) String() string {
	lines := make([]string, 0, len(t.order))
	for _, name := range t.order {
		lines = append(lines, t.stages[name].String())
	}
	return strings.Join(lines, "\n")
}
