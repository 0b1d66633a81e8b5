// Package report writes build results in formats consumed by CI servers.
package report

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"

	"github.com/jstemmer/go-junit-report/v2/junit"

	"github.com/initify/flakie/internal/runner"
)

// WriteJUnit renders res as JUnit XML: one testsuite per scenario suite
// and one testcase per scenario. A testcase carries a failure when any
// of its runs failed, and its system-out holds the run counts.
func WriteJUnit(w io.Writer, name string, res *runner.Result) error {
	flaky := map[string]bool{}
	for _, t := range res.FlakyTests {
		flaky[t] = true
	}

	var order []string
	suites := map[string]*junit.Testsuite{}
	for _, c := range res.Cases {
		ts, ok := suites[c.Suite]
		if !ok {
			ts = &junit.Testsuite{Name: c.Suite, ID: len(order), Time: "0"}
			ts.AddProperty("seed", strconv.FormatInt(res.Seed, 10))
			suites[c.Suite] = ts
			order = append(order, c.Suite)
		}
		counts := res.TestStats[c.ID]
		tc := junit.Testcase{
			Name:      c.Name,
			Classname: c.Suite,
			Time:      "0",
			Status:    string(c.Kind),
			SystemOut: &junit.Output{Data: fmt.Sprintf("pass=%d fail=%d retries=%d flakiness_rate=%.4f",
				counts.Pass, counts.Fail, counts.Retries, counts.FlakinessRate())},
		}
		if counts.Fail > 0 {
			typ := "failure"
			if flaky[c.ID] {
				typ = "flaky"
			}
			tc.Failure = &junit.Result{
				Message: res.Messages[c.ID],
				Type:    typ,
				Data:    fmt.Sprintf("failed %d of %d runs", counts.Fail, counts.Runs()),
			}
		}
		ts.AddTestcase(tc)
	}

	doc := junit.Testsuites{
		Name: name,
		Time: strconv.FormatFloat(res.Duration.Seconds(), 'f', 3, 64),
	}
	for _, s := range order {
		doc.AddSuite(*suites[s])
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode junit: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}
