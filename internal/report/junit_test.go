package report

import (
	"bytes"
	"encoding/xml"
	"testing"
	"time"

	"github.com/jstemmer/go-junit-report/v2/junit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/initify/flakie/internal/detect"
	"github.com/initify/flakie/internal/runner"
	"github.com/initify/flakie/internal/scenario"
)

func TestWriteJUnit(t *testing.T) {
	stats := map[string]detect.Counts{
		"Docs/testResourceName": {Pass: 3, Fail: 2},
		"Docs/testFormat":       {Pass: 5},
		"Known/parser":          {Fail: 5},
	}
	res := &runner.Result{
		Summary:  detect.Summarize(5, []string{"Docs", "Known"}, stats),
		Messages: map[string]string{"Docs/testResourceName": "Resource not found", "Known/parser": "Parser regression"},
		Cases: []runner.Case{
			{ID: "Docs/testResourceName", Suite: "Docs", Name: "testResourceName", Kind: scenario.KindFlaky},
			{ID: "Docs/testFormat", Suite: "Docs", Name: "testFormat", Kind: scenario.KindStable},
			{ID: "Known/parser", Suite: "Known", Name: "parser", Kind: scenario.KindRegression},
		},
		Seed:     42,
		Duration: 1500 * time.Millisecond,
	}

	var buf bytes.Buffer
	require.NoError(t, WriteJUnit(&buf, "demo", res))

	var doc junit.Testsuites
	require.NoError(t, xml.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "demo", doc.Name)
	assert.Equal(t, 3, doc.Tests)
	assert.Equal(t, 2, doc.Failures)
	assert.Equal(t, "1.500", doc.Time)
	require.Len(t, doc.Suites, 2)

	docs := doc.Suites[0]
	assert.Equal(t, "Docs", docs.Name)
	assert.Equal(t, 2, docs.Tests)
	assert.Equal(t, 1, docs.Failures)
	require.NotNil(t, docs.Properties)
	assert.Equal(t, []junit.Property{{Name: "seed", Value: "42"}}, *docs.Properties)
	require.Len(t, docs.Testcases, 2)
	first := docs.Testcases[0]
	assert.Equal(t, "flaky", first.Status)
	require.NotNil(t, first.Failure)
	assert.Equal(t, "flaky", first.Failure.Type)
	assert.Equal(t, "Resource not found", first.Failure.Message)
	assert.Equal(t, "failed 2 of 5 runs", first.Failure.Data)
	require.NotNil(t, first.SystemOut)
	assert.Equal(t, "pass=3 fail=2 retries=0 flakiness_rate=0.4000", first.SystemOut.Data)
	assert.Nil(t, docs.Testcases[1].Failure)

	known := doc.Suites[1]
	require.NotNil(t, known.Testcases[0].Failure)
	assert.Equal(t, "failure", known.Testcases[0].Failure.Type)
}
