package scenario

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/initify/flakie/internal/outcome"
)

// Builder assembles a Catalog. The first configuration error is kept and
// returned by Build; later calls become no-ops.
type Builder struct {
	scenarios []Scenario
	ids       map[string]struct{}
	err       error
}

func NewBuilder() *Builder {
	return &Builder{ids: map[string]struct{}{}}
}

func (b *Builder) add(s Scenario) *Builder {
	if b.err != nil {
		return b
	}
	if strings.TrimSpace(s.Suite) == "" || strings.TrimSpace(s.Name) == "" {
		b.err = errors.New("scenario needs a suite and a name")
		return b
	}
	if _, dup := b.ids[s.ID()]; dup {
		b.err = fmt.Errorf("duplicate scenario %q", s.ID())
		return b
	}
	b.ids[s.ID()] = struct{}{}
	b.scenarios = append(b.scenarios, s)
	return b
}

// Stable registers a scenario expected to pass on every run.
func (b *Builder) Stable(suite, name string, fn Func) *Builder {
	return b.add(Scenario{Suite: suite, Name: name, Kind: KindStable, run: fn})
}

// Flaky registers a scenario failing with probability p and message msg.
func (b *Builder) Flaky(suite, name string, p float64, msg string) *Builder {
	t, err := outcome.ParseThreshold(p)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("scenario %s/%s: %w", suite, name, err)
		}
		return b
	}
	return b.add(Scenario{
		Suite:     suite,
		Name:      name,
		Kind:      KindFlaky,
		Threshold: float64(t),
		Message:   msg,
		run: func(_ context.Context, env *Env) error {
			return env.Check(float64(t), msg)
		},
	})
}

// Regression registers a scenario failing on every run. When check is nil
// the scenario raises msg unconditionally.
func (b *Builder) Regression(suite, name, msg string, check Func) *Builder {
	run := check
	if run == nil {
		run = func(context.Context, *Env) error { return &outcome.RegressionError{Message: msg} }
	}
	return b.add(Scenario{Suite: suite, Name: name, Kind: KindRegression, Threshold: 1, Message: msg, run: run})
}

// Steps registers a multi-step scenario with designed failure
// probability p. The first failing step ends the invocation.
func (b *Builder) Steps(suite, name string, p float64, steps ...Step) *Builder {
	t, err := outcome.ParseThreshold(p)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("scenario %s/%s: %w", suite, name, err)
		}
		return b
	}
	if len(steps) == 0 {
		if b.err == nil {
			b.err = fmt.Errorf("scenario %s/%s: no steps", suite, name)
		}
		return b
	}
	kind := KindFlaky
	if t == 0 {
		kind = KindStable
	}
	return b.add(Scenario{
		Suite:     suite,
		Name:      name,
		Kind:      kind,
		Threshold: float64(t),
		run: func(ctx context.Context, env *Env) error {
			for _, st := range steps {
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := st.Run(ctx, env); err != nil {
					return fmt.Errorf("%s: %w", st.Name, err)
				}
			}
			return nil
		},
	})
}

func (b *Builder) Build() (*Catalog, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]Scenario, len(b.scenarios))
	copy(out, b.scenarios)
	return &Catalog{scenarios: out}, nil
}

// Catalog is an ordered, immutable set of scenarios.
type Catalog struct {
	scenarios []Scenario
}

func (c *Catalog) All() []Scenario {
	out := make([]Scenario, len(c.scenarios))
	copy(out, c.scenarios)
	return out
}

func (c *Catalog) Len() int { return len(c.scenarios) }

// Suites returns suite names in registration order.
func (c *Catalog) Suites() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range c.scenarios {
		if !seen[s.Suite] {
			seen[s.Suite] = true
			out = append(out, s.Suite)
		}
	}
	return out
}

// Filter returns the scenarios of suite, matched case-insensitively.
// An empty suite returns the whole catalog.
func (c *Catalog) Filter(suite string) (*Catalog, error) {
	if suite == "" {
		return c, nil
	}
	var out []Scenario
	for _, s := range c.scenarios {
		if strings.EqualFold(s.Suite, suite) {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown suite %q", suite)
	}
	return &Catalog{scenarios: out}, nil
}

func (c *Catalog) Lookup(id string) (Scenario, bool) {
	for _, s := range c.scenarios {
		if s.ID() == id {
			return s, true
		}
	}
	return Scenario{}, false
}
