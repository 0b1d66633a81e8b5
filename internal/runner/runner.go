// Package runner executes the scenario catalog the way the demo build
// would: repeated runs, retries, parallel batches, muting and a final
// build status.
package runner

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"moul.io/srand"

	"github.com/initify/flakie/internal/detect"
	"github.com/initify/flakie/internal/outcome"
	"github.com/initify/flakie/internal/pipeline"
	"github.com/initify/flakie/internal/scenario"
)

type Status string

const (
	StatusPassed        Status = "Passed"
	StatusKnownFlaky    Status = "Passed with known flaky failures"
	StatusInvestigating Status = "Under investigation"
	StatusFailed        Status = "Failed"
)

type Muted struct {
	Test            string  `json:"test"`
	Rate            float64 `json:"flakiness_rate"`
	Rule            string  `json:"rule"`
	Assignee        string  `json:"assignee,omitempty"`
	ContinueRunning bool    `json:"continue_running"`
}

type Alert struct {
	Metric      string  `json:"metric"`
	Value       float64 `json:"value"`
	Threshold   float64 `json:"threshold"`
	Description string  `json:"description,omitempty"`
}

type Case struct {
	ID        string        `json:"id"`
	Suite     string        `json:"suite"`
	Name      string        `json:"name"`
	Kind      scenario.Kind `json:"kind"`
	Threshold float64       `json:"threshold"`
}

type Result struct {
	detect.Summary
	Seed     int64             `json:"seed"`
	Status   Status            `json:"status"`
	Muted    []Muted           `json:"muted"`
	Alerts   []Alert           `json:"alerts"`
	Messages map[string]string `json:"messages"`
	Cases    []Case            `json:"cases"`
	Duration time.Duration     `json:"duration"`
}

// ExitCode is 1 for a failed build and 0 otherwise.
func (r *Result) ExitCode() int {
	if r.Status == StatusFailed {
		return 1
	}
	return 0
}

type Options struct {
	// Runs overrides flakyDetection.runs when positive.
	Runs int
	// Seed makes a run reproducible; zero picks a fresh one.
	Seed  int64
	Suite string
}

// SourceFunc returns the entropy source of one scenario for one build.
type SourceFunc func(id string, seed int64) outcome.Source

// DeriveSource gives every scenario its own stream so results do not
// depend on how scenarios are spread over batches.
func DeriveSource(id string, seed int64) outcome.Source {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return outcome.NewSeeded(seed ^ int64(h.Sum64()))
}

type Runner struct {
	Pipeline  *pipeline.Config
	Catalog   *scenario.Catalog
	Logger    *zap.Logger
	SourceFor SourceFunc
}

func New(cfg *pipeline.Config, cat *scenario.Catalog, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{Pipeline: cfg, Catalog: cat, Logger: logger, SourceFor: DeriveSource}
}

type build struct {
	cfg   *pipeline.Config
	log   *zap.Logger
	stats *detect.Stats

	mu       sync.Mutex
	messages map[string]string
}

func (r *Runner) Run(ctx context.Context, o Options) (*Result, error) {
	if r.Pipeline == nil || r.Catalog == nil {
		return nil, errors.New("runner needs a pipeline and a catalog")
	}
	if o.Runs < 0 {
		return nil, fmt.Errorf("runs must be >= 0, got %d", o.Runs)
	}
	cfg := r.Pipeline
	cat, err := r.Catalog.Filter(o.Suite)
	if err != nil {
		return nil, err
	}
	runs := o.Runs
	if runs == 0 {
		runs = 1
		if cfg.Features.FlakyDetection.Enabled {
			runs = cfg.Features.FlakyDetection.Runs
		}
	}
	seed := o.Seed
	if seed == 0 {
		seed = srand.Fast()
	}
	sourceFor := r.SourceFor
	if sourceFor == nil {
		sourceFor = DeriveSource
	}
	log := r.Logger
	if log == nil {
		log = zap.NewNop()
	}

	if timeout := cfg.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	b := &build{
		cfg:      cfg,
		log:      log,
		stats:    detect.NewStats(),
		messages: map[string]string{},
	}
	scenarios := cat.All()
	batches := partition(scenarios, cfg.Features.Parallel.Batches)
	log.Info("build started",
		zap.String("pipeline", cfg.Name),
		zap.Int("scenarios", len(scenarios)),
		zap.Int("batches", len(batches)),
		zap.Int("runs", runs),
		zap.Int64("seed", seed),
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		i, batch := i, batch
		g.Go(func() error {
			sources := make([]outcome.Source, len(batch))
			for j, sc := range batch {
				sources[j] = sourceFor(sc.ID(), seed)
			}
			for run := 1; run <= runs; run++ {
				for j, sc := range batch {
					if err := b.execute(gctx, sc, sources[j]); err != nil {
						return fmt.Errorf("batch %d: %w", i, err)
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("build aborted: %w", err)
	}

	res := &Result{
		Summary:  detect.Summarize(runs, cat.Suites(), b.stats.Snapshot()),
		Seed:     seed,
		Messages: b.messages,
		Duration: time.Since(start),
	}
	for _, sc := range scenarios {
		res.Cases = append(res.Cases, Case{ID: sc.ID(), Suite: sc.Suite, Name: sc.Name, Kind: sc.Kind, Threshold: sc.Threshold})
	}
	res.Muted = mute(cfg, res.Summary)
	res.Alerts = alerts(cfg, res.Summary)
	res.Status = status(cfg, res.Summary, res.Muted)

	log.Info("build finished",
		zap.String("status", string(res.Status)),
		zap.Int("flaky", len(res.FlakyTests)),
		zap.Int("failed", len(res.FailedTests)),
		zap.Int("muted", len(res.Muted)),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// execute runs one scenario once, retrying failed attempts per the
// retry feature, and records the final outcome.
func (b *build) execute(ctx context.Context, sc scenario.Scenario, src outcome.Source) error {
	id := sc.ID()
	err := sc.Invoke(ctx, src)
	for retry := 0; err != nil && ctx.Err() == nil && retry < b.cfg.Features.Retry.Count && b.retryable(id); retry++ {
		b.stats.Retry(id)
		err = sc.Invoke(ctx, src)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	b.stats.Record(id, err == nil)
	if err == nil {
		return nil
	}
	if outcome.Classify(err) == outcome.Unexpected {
		b.log.Warn("scenario failed outside its design", zap.String("test", id), zap.Error(err))
	}
	b.mu.Lock()
	b.messages[id] = outcome.Message(err)
	b.mu.Unlock()
	return nil
}

// retryable limits retries to tests with a known passing run when the
// pipeline only retries flaky tests.
func (b *build) retryable(id string) bool {
	if !b.cfg.Features.Retry.FlakyOnly {
		return true
	}
	return b.stats.Get(id).Pass > 0
}

func partition(scenarios []scenario.Scenario, n int) [][]scenario.Scenario {
	if n < 1 {
		n = 1
	}
	if n > len(scenarios) {
		n = len(scenarios)
	}
	out := make([][]scenario.Scenario, n)
	for i, sc := range scenarios {
		out[i%n] = append(out[i%n], sc)
	}
	return out
}

// Metrics exposes the condition metrics of one test.
func Metrics(c detect.Counts) map[string]float64 {
	return map[string]float64{
		pipeline.MetricFlakinessRate: c.FlakinessRate(),
		pipeline.MetricFailureRate:   c.FailureRate(),
		pipeline.MetricPassRate:      c.PassRate(),
		pipeline.MetricRuns:          float64(c.Runs()),
	}
}

func mute(cfg *pipeline.Config, s detect.Summary) []Muted {
	out := []Muted{}
	tests := append(append([]string{}, s.FlakyTests...), s.FailedTests...)
	for _, t := range tests {
		c := s.TestStats[t]
		m := Metrics(c)
		for _, rule := range cfg.Features.Muting.Rules {
			if rule.Condition.Eval(m) {
				out = append(out, Muted{
					Test:            t,
					Rate:            c.FlakinessRate(),
					Rule:            rule.Condition.String(),
					Assignee:        rule.Assignee,
					ContinueRunning: rule.ContinueRunning,
				})
				break
			}
		}
	}
	return out
}

// overall computes build-wide metrics as shares of classified tests.
func overall(s detect.Summary) map[string]float64 {
	total := len(s.FlakyTests) + len(s.FailedTests) + len(s.StableTests)
	if total == 0 {
		return map[string]float64{pipeline.MetricRuns: float64(s.TotalRuns)}
	}
	return map[string]float64{
		pipeline.MetricFlakinessRate: float64(len(s.FlakyTests)) / float64(total),
		pipeline.MetricFailureRate:   float64(len(s.FailedTests)) / float64(total),
		pipeline.MetricPassRate:      float64(len(s.StableTests)) / float64(total),
		pipeline.MetricRuns:          float64(s.TotalRuns),
	}
}

func alerts(cfg *pipeline.Config, s detect.Summary) []Alert {
	out := []Alert{}
	m := overall(s)
	for _, mc := range cfg.FailureConditions.Metrics {
		if v := m[mc.Metric]; v > mc.Threshold {
			out = append(out, Alert{Metric: mc.Metric, Value: v, Threshold: mc.Threshold, Description: mc.Description})
		}
	}
	return out
}

func status(cfg *pipeline.Config, s detect.Summary, muted []Muted) Status {
	fc := cfg.FailureConditions
	if len(s.FailedTests) > 0 && fc.StopBuildOnFailure {
		return StatusFailed
	}
	mutedSet := map[string]Muted{}
	for _, m := range muted {
		mutedSet[m.Test] = m
	}
	tolerateFlaky := fc.ExcludeFlakyTests && cfg.Features.Retry.ContinueOnFlakyFailure
	investigating := false
	for _, t := range s.FlakyTests {
		m, isMuted := mutedSet[t]
		if isMuted && m.Assignee != "" {
			investigating = true
		}
		if s.TestStats[t].Fail > 0 && !isMuted && !tolerateFlaky {
			return StatusFailed
		}
	}
	switch {
	case investigating:
		return StatusInvestigating
	case len(s.FlakyTests) > 0:
		return StatusKnownFlaky
	}
	return StatusPassed
}
