// Package detect aggregates per-test outcomes over repeated runs and tells
// flaky tests apart from consistently failing ones.
package detect

import (
	"sort"
	"sync"
)

// Counts is the outcome history of one test. Pass and Fail count runs by
// their final outcome; Retries counts extra attempts made after a failure.
type Counts struct {
	Pass    int `json:"pass"`
	Fail    int `json:"fail"`
	Retries int `json:"retries,omitempty"`
}

func (c Counts) Runs() int { return c.Pass + c.Fail }

// Attempts includes retried attempts.
func (c Counts) Attempts() int { return c.Pass + c.Fail + c.Retries }

// Flaky reports mixed outcomes: at least one pass and at least one
// failed attempt, retried or not.
func (c Counts) Flaky() bool { return c.Pass > 0 && (c.Fail > 0 || c.Retries > 0) }

func (c Counts) Failing() bool { return c.Pass == 0 && c.Fail > 0 }

// FlakinessRate is the share of failed attempts, retries included.
func (c Counts) FlakinessRate() float64 {
	if c.Attempts() == 0 {
		return 0
	}
	return float64(c.Fail+c.Retries) / float64(c.Attempts())
}

// FailureRate is the share of runs that failed after retries.
func (c Counts) FailureRate() float64 {
	if c.Runs() == 0 {
		return 0
	}
	return float64(c.Fail) / float64(c.Runs())
}

func (c Counts) PassRate() float64 {
	if c.Runs() == 0 {
		return 0
	}
	return float64(c.Pass) / float64(c.Runs())
}

// Stats collects Counts per test name. It is safe for concurrent use.
type Stats struct {
	mu sync.Mutex
	m  map[string]*Counts
}

func NewStats() *Stats {
	return &Stats{m: map[string]*Counts{}}
}

func (s *Stats) get(test string) *Counts {
	c, ok := s.m[test]
	if !ok {
		c = &Counts{}
		s.m[test] = c
	}
	return c
}

// Seen registers test without recording an outcome.
func (s *Stats) Seen(test string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(test)
}

func (s *Stats) Record(test string, passed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.get(test)
	if passed {
		c.Pass++
	} else {
		c.Fail++
	}
}

func (s *Stats) Retry(test string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.get(test).Retries++
}

func (s *Stats) Get(test string) Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.m[test]; ok {
		return *c
	}
	return Counts{}
}

func (s *Stats) Snapshot() map[string]Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counts, len(s.m))
	for k, v := range s.m {
		out[k] = *v
	}
	return out
}

// Tests returns the known test names, sorted.
func (s *Stats) Tests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
