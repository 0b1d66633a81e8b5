// Package scenario defines the simulated test cases of the demo: stable
// ones that always pass, flaky ones that fail with a designed probability,
// and regressions that fail on every run.
//
// A scenario only ever sees the Env handed to it for one invocation. There
// is no state shared between scenarios or between two invocations of the
// same scenario, so a scenario cannot depend on execution order.
package scenario

import (
	"context"
	"fmt"

	"github.com/initify/flakie/internal/outcome"
)

type Kind string

const (
	KindStable     Kind = "stable"
	KindFlaky      Kind = "flaky"
	KindRegression Kind = "regression"
)

// Env is the per-invocation context of a scenario.
type Env struct {
	Source outcome.Source
	state  map[string]int
}

func newEnv(src outcome.Source) *Env {
	return &Env{Source: src, state: map[string]int{}}
}

func (e *Env) Set(key string, v int) { e.state[key] = v }

func (e *Env) Get(key string) (int, bool) {
	v, ok := e.state[key]
	return v, ok
}

// Check draws once against p and returns a *outcome.FlakyError on fail.
func (e *Env) Check(p float64, msg string) error {
	sel, err := outcome.NewSelector(p, e.Source, msg)
	if err != nil {
		return err
	}
	return sel.Check()
}

// Draw reports whether one draw against p lands in the failure region.
func (e *Env) Draw(p float64) (bool, error) {
	sel, err := outcome.NewSelector(p, e.Source, "")
	if err != nil {
		return false, err
	}
	return sel.Draw(), nil
}

// Func is the body of a scenario or of one of its steps.
type Func func(ctx context.Context, env *Env) error

// Step is one stage of a multi-step scenario. Steps share the Env of
// their invocation and run in declaration order.
type Step struct {
	Name string
	Run  Func
}

type Scenario struct {
	Suite string `json:"suite"`
	Name  string `json:"name"`
	Kind  Kind   `json:"kind"`
	// Threshold is the designed failure probability of one invocation.
	Threshold float64 `json:"threshold"`
	Message   string  `json:"message,omitempty"`

	run Func
}

func (s Scenario) ID() string { return s.Suite + "/" + s.Name }

// Invoke runs the scenario once with a fresh Env drawing from src.
func (s Scenario) Invoke(ctx context.Context, src outcome.Source) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.run == nil {
		return fmt.Errorf("scenario %s has no body", s.ID())
	}
	return s.run(ctx, newEnv(src))
}
