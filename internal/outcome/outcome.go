// Package outcome decides, for a single invocation, whether a simulated
// scenario passes or fails by comparing a fresh random sample against a
// fixed failure probability.
package outcome

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidThreshold is returned for probabilities outside [0, 1].
var ErrInvalidThreshold = errors.New("threshold must be within [0, 1]")

// Threshold is the designed failure probability of a scenario.
type Threshold float64

// ParseThreshold validates p and returns it as a Threshold.
func ParseThreshold(p float64) (Threshold, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return 0, fmt.Errorf("%w: got %v", ErrInvalidThreshold, p)
	}
	return Threshold(p), nil
}

// Selector draws one sample per call and fails when sample < threshold.
type Selector struct {
	p       Threshold
	src     Source
	message string
}

// NewSelector validates its inputs up front so that a malformed threshold
// never reaches the sampling path.
func NewSelector(p float64, src Source, message string) (*Selector, error) {
	t, err := ParseThreshold(p)
	if err != nil {
		return nil, err
	}
	if src == nil {
		return nil, errors.New("selector requires an entropy source")
	}
	return &Selector{p: t, src: src, message: message}, nil
}

func (s *Selector) Threshold() Threshold { return s.p }

// Draw takes a fresh sample and reports whether this invocation fails.
func (s *Selector) Draw() bool {
	_, fail := s.draw()
	return fail
}

func (s *Selector) draw() (float64, bool) {
	v := s.src.Float64()
	return v, v < float64(s.p)
}

// Check returns nil on pass and a *FlakyError on fail.
func (s *Selector) Check() error {
	v, fail := s.draw()
	if !fail {
		return nil
	}
	return &FlakyError{Message: s.message, Sample: v, Threshold: s.p, Drawn: true}
}
