package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Len(t, cfg.Steps, 2)
	assert.Equal(t, 2, cfg.Features.Retry.Count)
	assert.Equal(t, 4, cfg.Features.Parallel.Batches)
	assert.Equal(t, "test.flakinessRate > 0.3 && test.flakinessRate < 1.0", cfg.Features.Muting.Rules[0].Condition.String())
	assert.Equal(t, 10*60, int(cfg.Timeout().Seconds()))
}

func TestConditionEval(t *testing.T) {
	c, err := ParseCondition("test.flakinessRate > 0.3 && test.flakinessRate < 1.0")
	require.NoError(t, err)

	tests := []struct {
		rate float64
		want bool
	}{
		{0, false},
		{0.3, false},
		{0.31, true},
		{0.99, true},
		{1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Eval(map[string]float64{MetricFlakinessRate: tt.rate}), "rate=%v", tt.rate)
	}
}

func TestConditionPrecedence(t *testing.T) {
	c, err := ParseCondition("test.runs >= 10 && test.failureRate == 1 || test.passRate <= 0.5")
	require.NoError(t, err)
	assert.True(t, c.Eval(map[string]float64{MetricRuns: 10, MetricFailureRate: 1, MetricPassRate: 0}))
	assert.True(t, c.Eval(map[string]float64{MetricRuns: 1, MetricPassRate: 0.4}))
	assert.False(t, c.Eval(map[string]float64{MetricRuns: 1, MetricFailureRate: 1, MetricPassRate: 0.6}))
}

func TestConditionErrors(t *testing.T) {
	for _, s := range []string{
		"",
		"test.flakinessRate",
		"test.unknown > 0.1",
		"test.flakinessRate > abc",
		"test.flakinessRate > 0.1 &&",
		"test.flakinessRate + 1",
		"flaky > 0.3",
	} {
		_, err := ParseCondition(s)
		assert.Error(t, err, s)
	}
}

func TestConditionOr(t *testing.T) {
	c, err := ParseCondition("test.failureRate == 1 || (test.runs > 3 && test.passRate < 0.5)")
	require.NoError(t, err)
	assert.True(t, c.Eval(map[string]float64{MetricFailureRate: 1}))
	assert.True(t, c.Eval(map[string]float64{MetricRuns: 4, MetricPassRate: 0.25}))
	assert.False(t, c.Eval(map[string]float64{MetricRuns: 4, MetricPassRate: 0.75}))
	assert.False(t, Condition{}.Eval(nil), "zero condition never matches")
}

func TestParseEmptyDocumentKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().Name, cfg.Name)
	assert.Equal(t, 4, cfg.Features.Parallel.Batches)
}

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
name: custom
features:
  retry:
    count: 0
  parallel:
    batches: 1
  muting:
    rules:
      - condition: "test.failureRate != 0"
        assignee: qa
failureConditions:
  excludeFlakyTests: false
  metrics:
    - metric: test.failureRate
      threshold: 0.2
`))
	require.NoError(t, err)
	assert.Equal(t, "custom", cfg.Name)
	assert.Len(t, cfg.Steps, 2, "defaults kept for omitted keys")
	assert.Equal(t, 0, cfg.Features.Retry.Count)
	assert.Equal(t, 1, cfg.Features.Parallel.Batches)
	require.Len(t, cfg.Features.Muting.Rules, 1)
	assert.Equal(t, "qa", cfg.Features.Muting.Rules[0].Assignee)
	assert.False(t, cfg.FailureConditions.ExcludeFlakyTests)
}

func TestParseRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"threshold above one": "failureConditions:\n  metrics:\n    - metric: test.flakinessRate\n      threshold: 1.5\n",
		"negative threshold":  "failureConditions:\n  metrics:\n    - metric: test.flakinessRate\n      threshold: -0.1\n",
		"unknown metric":      "failureConditions:\n  metrics:\n    - metric: cpu\n      threshold: 0.1\n",
		"batches":             "features:\n  parallel:\n    batches: 0\n",
		"retries":             "features:\n  retry:\n    count: -1\n",
		"runs":                "features:\n  flakyDetection:\n    enabled: true\n    runs: 0\n",
		"condition":           "features:\n  muting:\n    rules:\n      - condition: \"flaky > 0.3\"\n",
		"missing condition":   "features:\n  muting:\n    rules:\n      - assignee: qa\n",
		"yaml":                "name: [",
		"misspelled key":      "features:\n  parallel:\n    batchs: 0\n",
		"unknown section":     "featurez:\n  retry:\n    count: 1\n",
	} {
		_, err := Parse([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestLoadRoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "pipeline.yml")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Features.Muting.Rules[0].Condition.String(), cfg.Features.Muting.Rules[0].Condition.String())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}

func TestRepositoryPipelineFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "pipeline.yml"))
	require.NoError(t, err)
	assert.Equal(t, "Flaky Test Intelligence Demo", cfg.Name)
}
