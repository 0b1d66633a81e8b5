package outcome

import (
	"encoding/binary"
	"math/rand"
	"sync"

	"gitlab.com/NebulousLabs/fastrand"
	"moul.io/srand"
)

// Source is an entropy source producing uniform samples in [0, 1).
type Source interface {
	Float64() float64
}

// SourceFunc adapts a plain function to a Source.
type SourceFunc func() float64

func (f SourceFunc) Float64() float64 { return f() }

type seeded struct {
	mu sync.Mutex
	r  *rand.Rand
}

// NewSeeded returns a deterministic Source. Two sources built from the
// same seed yield the same sequence. It is safe for concurrent use.
func NewSeeded(seed int64) Source {
	return &seeded{r: rand.New(rand.NewSource(seed))}
}

func (s *seeded) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// NewFast returns a Source seeded from process entropy, so runs differ.
func NewFast() Source {
	return NewSeeded(srand.Fast())
}

type secure struct{}

// NewSecure returns a Source backed by a CSPRNG.
func NewSecure() Source { return secure{} }

func (secure) Float64() float64 {
	var b [8]byte
	fastrand.Read(b[:])
	// keep 53 bits, the float64 mantissa width
	return float64(binary.BigEndian.Uint64(b[:])>>11) / (1 << 53)
}

// Sequence replays fixed samples in order, wrapping around at the end.
// The zero-length Sequence always returns 0.
type Sequence struct {
	mu      sync.Mutex
	samples []float64
	next    int
}

func NewSequence(samples ...float64) *Sequence {
	return &Sequence{samples: samples}
}

func (s *Sequence) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return 0
	}
	v := s.samples[s.next%len(s.samples)]
	s.next++
	return v
}
