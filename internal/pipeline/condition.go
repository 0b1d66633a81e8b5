package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"gopkg.in/yaml.v3"
)

// Metric names understood by conditions.
const (
	MetricFlakinessRate = "test.flakinessRate"
	MetricFailureRate   = "test.failureRate"
	MetricPassRate      = "test.passRate"
	MetricRuns          = "test.runs"
)

var knownMetrics = map[string]bool{
	MetricFlakinessRate: true,
	MetricFailureRate:   true,
	MetricPassRate:      true,
	MetricRuns:          true,
}

type testMetrics struct {
	FlakinessRate float64 `expr:"flakinessRate"`
	FailureRate   float64 `expr:"failureRate"`
	PassRate      float64 `expr:"passRate"`
	Runs          float64 `expr:"runs"`
}

// conditionEnv is what a condition sees: the metrics under `test.`.
type conditionEnv struct {
	Test testMetrics `expr:"test"`
}

func envOf(m map[string]float64) conditionEnv {
	return conditionEnv{Test: testMetrics{
		FlakinessRate: m[MetricFlakinessRate],
		FailureRate:   m[MetricFailureRate],
		PassRate:      m[MetricPassRate],
		Runs:          m[MetricRuns],
	}}
}

// Condition is a compiled boolean expression such as
//
//	test.flakinessRate > 0.3 && test.flakinessRate < 1.0
//
// Only the test.* metrics are in scope.
type Condition struct {
	src     string
	program *vm.Program
}

func (c Condition) String() string { return c.src }

// Eval reports whether the metrics satisfy the condition. Missing metrics
// read as zero.
func (c Condition) Eval(metrics map[string]float64) bool {
	if c.program == nil {
		return false
	}
	out, err := expr.Run(c.program, envOf(metrics))
	if err != nil {
		return false
	}
	ok, _ := out.(bool)
	return ok
}

func ParseCondition(s string) (Condition, error) {
	src := strings.TrimSpace(s)
	if src == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}
	program, err := expr.Compile(src, expr.Env(conditionEnv{}), expr.AsBool())
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", src, err)
	}
	return Condition{src: src, program: program}, nil
}

// MarshalYAML keeps the original expression text.
func (c Condition) MarshalYAML() (any, error) { return c.src, nil }

func (c *Condition) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseCondition(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

func (c Condition) MarshalJSON() ([]byte, error) { return json.Marshal(c.src) }
