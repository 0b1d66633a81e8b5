// Package pipeline models the CI build declaration of the demo: its steps
// and the flaky test features toggled on it.
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Step struct {
	Name string `yaml:"name" json:"name"`
	Run  string `yaml:"run" json:"run"`
}

type FlakyDetection struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Runs is how many times every test is executed per build.
	Runs int `yaml:"runs" json:"runs"`
}

type Retry struct {
	Count                  int  `yaml:"count" json:"count"`
	FlakyOnly              bool `yaml:"flakyOnly" json:"flakyOnly"`
	ContinueOnFlakyFailure bool `yaml:"continueOnFlakyFailure" json:"continueOnFlakyFailure"`
}

type MuteRule struct {
	Condition       Condition `yaml:"condition" json:"condition"`
	Assignee        string    `yaml:"assignee,omitempty" json:"assignee,omitempty"`
	ContinueRunning bool      `yaml:"continueRunning" json:"continueRunning"`
}

type Muting struct {
	Rules []MuteRule `yaml:"rules" json:"rules"`
}

type Parallel struct {
	Batches int `yaml:"batches" json:"batches"`
}

type MetricCondition struct {
	Metric      string  `yaml:"metric" json:"metric"`
	Threshold   float64 `yaml:"threshold" json:"threshold"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
}

type FailureConditions struct {
	StopBuildOnFailure  bool              `yaml:"stopBuildOnFailure" json:"stopBuildOnFailure"`
	ExcludeFlakyTests   bool              `yaml:"excludeFlakyTests" json:"excludeFlakyTests"`
	ExecutionTimeoutMin int               `yaml:"executionTimeoutMin" json:"executionTimeoutMin"`
	Metrics             []MetricCondition `yaml:"metrics,omitempty" json:"metrics,omitempty"`
}

type Features struct {
	FlakyDetection FlakyDetection `yaml:"flakyDetection" json:"flakyDetection"`
	Retry          Retry          `yaml:"retry" json:"retry"`
	Muting         Muting         `yaml:"muting" json:"muting"`
	Parallel       Parallel       `yaml:"parallel" json:"parallel"`
}

type Config struct {
	Name              string            `yaml:"name" json:"name"`
	Description       string            `yaml:"description,omitempty" json:"description,omitempty"`
	Steps             []Step            `yaml:"steps" json:"steps"`
	Features          Features          `yaml:"features" json:"features"`
	FailureConditions FailureConditions `yaml:"failureConditions" json:"failureConditions"`
}

// Default returns the demo build: two steps, detection over 5 runs,
// 2 retries of flaky tests, 4 batches and a 10 minute timeout.
func Default() *Config {
	mute, _ := ParseCondition("test.flakinessRate > 0.3 && test.flakinessRate < 1.0")
	return &Config{
		Name:        "Flaky Test Intelligence Demo",
		Description: "Demonstrates flaky test detection",
		Steps: []Step{
			{Name: "Install Dependencies", Run: "go mod download"},
			{Name: "Run Tests with Intelligence", Run: "go test -tags demo -v ./examples/..."},
		},
		Features: Features{
			FlakyDetection: FlakyDetection{Enabled: true, Runs: 5},
			Retry:          Retry{Count: 2, FlakyOnly: true, ContinueOnFlakyFailure: true},
			Muting: Muting{Rules: []MuteRule{{
				Condition:       mute,
				Assignee:        "developer.responsible",
				ContinueRunning: true,
			}}},
			Parallel: Parallel{Batches: 4},
		},
		FailureConditions: FailureConditions{
			StopBuildOnFailure:  true,
			ExcludeFlakyTests:   true,
			ExecutionTimeoutMin: 10,
			Metrics: []MetricCondition{{
				Metric:      MetricFlakinessRate,
				Threshold:   0.5,
				Description: "Alert if overall test flakiness exceeds 50%",
			}},
		},
	}
}

// Timeout is the execution budget of one build; zero means none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.FailureConditions.ExecutionTimeoutMin) * time.Minute
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Steps) == 0 {
		errs = append(errs, errors.New("at least one step is required"))
	}
	for i, s := range c.Steps {
		if s.Name == "" || s.Run == "" {
			errs = append(errs, fmt.Errorf("step %d: name and run are required", i))
		}
	}
	f := c.Features
	if f.FlakyDetection.Enabled && f.FlakyDetection.Runs < 1 {
		errs = append(errs, fmt.Errorf("flakyDetection.runs must be >= 1, got %d", f.FlakyDetection.Runs))
	}
	if f.Retry.Count < 0 {
		errs = append(errs, fmt.Errorf("retry.count must be >= 0, got %d", f.Retry.Count))
	}
	if f.Parallel.Batches < 1 {
		errs = append(errs, fmt.Errorf("parallel.batches must be >= 1, got %d", f.Parallel.Batches))
	}
	for i, r := range f.Muting.Rules {
		if r.Condition.String() == "" {
			errs = append(errs, fmt.Errorf("muting.rules[%d]: condition is required", i))
		}
	}
	fc := c.FailureConditions
	if fc.ExecutionTimeoutMin < 0 {
		errs = append(errs, fmt.Errorf("executionTimeoutMin must be >= 0, got %d", fc.ExecutionTimeoutMin))
	}
	for i, m := range fc.Metrics {
		if !knownMetrics[m.Metric] {
			errs = append(errs, fmt.Errorf("metrics[%d]: unknown metric %q", i, m.Metric))
		}
		if m.Metric != MetricRuns && (math.IsNaN(m.Threshold) || m.Threshold < 0 || m.Threshold > 1) {
			errs = append(errs, fmt.Errorf("metrics[%d]: threshold must be within [0, 1], got %v", i, m.Threshold))
		}
	}
	return errors.Join(errs...)
}

// Parse decodes YAML on top of Default and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode pipeline: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline: %w", err)
	}
	return cfg, nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
