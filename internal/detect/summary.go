package detect

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

type Summary struct {
	TotalRuns   int               `json:"total_runs"`
	Packages    []string          `json:"packages,omitempty"`
	TestStats   map[string]Counts `json:"test_stats"`
	FlakyTests  []string          `json:"flaky_tests"`
	FailedTests []string          `json:"failed_tests"`
	StableTests []string          `json:"stable_tests"`
}

// Summarize classifies every test of stats.
func Summarize(runs int, packages []string, stats map[string]Counts) Summary {
	s := Summary{
		TotalRuns:   runs,
		Packages:    append([]string(nil), packages...),
		TestStats:   stats,
		FlakyTests:  []string{},
		FailedTests: []string{},
		StableTests: []string{},
	}
	sort.Strings(s.Packages)
	for t, c := range stats {
		switch {
		case c.Flaky():
			s.FlakyTests = append(s.FlakyTests, t)
		case c.Failing():
			s.FailedTests = append(s.FailedTests, t)
		case c.Pass > 0:
			s.StableTests = append(s.StableTests, t)
		}
	}
	sort.Strings(s.FlakyTests)
	sort.Strings(s.FailedTests)
	sort.Strings(s.StableTests)
	return s
}

// ExitCode is 3 when flaky tests were found, 1 for consistent failures
// only, 0 otherwise.
func (s Summary) ExitCode() int {
	if len(s.FlakyTests) > 0 {
		return 3
	}
	if len(s.FailedTests) > 0 {
		return 1
	}
	return 0
}

func (s Summary) flakyLines() []string {
	out := make([]string, 0, len(s.FlakyTests))
	for _, t := range s.FlakyTests {
		c := s.TestStats[t]
		line := fmt.Sprintf("%s (pass=%d, fail=%d", t, c.Pass, c.Fail)
		if c.Retries > 0 {
			line += fmt.Sprintf(", retries=%d", c.Retries)
		}
		out = append(out, line+")")
	}
	return out
}

func (s Summary) failedLines() []string {
	out := make([]string, 0, len(s.FailedTests))
	for _, t := range s.FailedTests {
		out = append(out, fmt.Sprintf("%s (fail=%d)", t, s.TestStats[t].Fail))
	}
	return out
}

func (s Summary) WriteHuman(w io.Writer) error {
	var b strings.Builder
	if len(s.FlakyTests) == 0 && len(s.FailedTests) == 0 {
		fmt.Fprintf(&b, "No flaky tests detected after %d runs.\n", s.TotalRuns)
	}
	if len(s.FlakyTests) > 0 {
		b.WriteString("Flaky tests detected:\n")
		for _, l := range s.flakyLines() {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	if len(s.FailedTests) > 0 {
		b.WriteString("Consistently failing tests:\n")
		for _, l := range s.failedLines() {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// Comment renders the summary as a pull request comment.
func (s Summary) Comment() string {
	var b strings.Builder
	b.WriteString("🧪 Flakie bot report\n\n")
	if len(s.FlakyTests) == 0 && len(s.FailedTests) == 0 {
		fmt.Fprintf(&b, "No flaky tests detected after %d runs.\n", s.TotalRuns)
		return b.String()
	}
	if len(s.FlakyTests) > 0 {
		b.WriteString("Flaky tests detected:\n")
		for _, l := range s.flakyLines() {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	} else {
		b.WriteString("No flaky tests detected.\n")
	}
	if len(s.FailedTests) > 0 {
		b.WriteString("\nConsistently failing tests:\n")
		for _, l := range s.failedLines() {
			fmt.Fprintf(&b, "- %s\n", l)
		}
	}
	return b.String()
}
