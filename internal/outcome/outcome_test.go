package outcome

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countFailures(t *testing.T, p float64, src Source, n int) int {
	t.Helper()
	sel, err := NewSelector(p, src, "flaky failure triggered")
	require.NoError(t, err)
	fails := 0
	for i := 0; i < n; i++ {
		if sel.Draw() {
			fails++
		}
	}
	return fails
}

func TestSelectorFailureRateConverges(t *testing.T) {
	fails := countFailures(t, 0.3, NewSeeded(42), 10000)
	assert.InDelta(t, 3000, fails, 150)
}

func TestSelectorBand(t *testing.T) {
	for _, p := range []float64{0.15, 0.25, 0.4, 0.75} {
		fails := countFailures(t, p, NewSeeded(7), 10000)
		// ~5 sigma
		tol := 5 * math.Sqrt(10000*p*(1-p))
		assert.InDelta(t, p*10000, fails, tol, "p=%v", p)
	}
}

func TestSelectorEdges(t *testing.T) {
	assert.Equal(t, 0, countFailures(t, 0, NewSeeded(1), 500))
	assert.Equal(t, 500, countFailures(t, 1, NewSeeded(1), 500))

	// extreme samples still respect the edges
	assert.Equal(t, 0, countFailures(t, 0, NewSequence(0), 10))
	assert.Equal(t, 10, countFailures(t, 1, NewSequence(math.Nextafter(1, 0)), 10))
}

func TestSelectorRejectsMalformedThreshold(t *testing.T) {
	drawn := 0
	src := SourceFunc(func() float64 { drawn++; return 0.5 })
	for _, p := range []float64{1.5, -0.1, math.NaN(), math.Inf(1)} {
		sel, err := NewSelector(p, src, "x")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidThreshold))
		assert.Nil(t, sel)
	}
	assert.Zero(t, drawn, "no sample may be drawn before validation")
}

func TestSelectorRequiresSource(t *testing.T) {
	_, err := NewSelector(0.5, nil, "x")
	require.Error(t, err)
}

func TestSelectorRedrawsEveryCall(t *testing.T) {
	sel, err := NewSelector(0.5, NewSequence(0.1, 0.9, 0.2, 0.8), "boom")
	require.NoError(t, err)
	var got []bool
	for i := 0; i < 4; i++ {
		got = append(got, sel.Draw())
	}
	assert.Equal(t, []bool{true, false, true, false}, got)
}

func TestCheckCarriesMessage(t *testing.T) {
	sel, err := NewSelector(0.3, NewSequence(0.05, 0.95), "Resource not found")
	require.NoError(t, err)

	err = sel.Check()
	var fe *FlakyError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "Resource not found", fe.Message)
	assert.Equal(t, Threshold(0.3), fe.Threshold)
	assert.Equal(t, Flaky, Classify(err))

	assert.NoError(t, sel.Check())
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Pass, Classify(nil))
	assert.Equal(t, Regression, Classify(Regressionf("parser regression at line %d", 42)))
	assert.Equal(t, Unexpected, Classify(errors.New("boom")))
	assert.Equal(t, "parser regression at line 42", Message(Regressionf("parser regression at line %d", 42)))
	assert.Equal(t, "regression", Regression.String())
}

func TestFlakyErrorWithoutSample(t *testing.T) {
	err := &FlakyError{Message: "sharedState = 0; want 84", Threshold: 0.3}
	assert.Equal(t, "sharedState = 0; want 84", err.Error())

	sel, serr := NewSelector(0.3, NewSequence(0.1), "Resource not found")
	require.NoError(t, serr)
	assert.Equal(t, "Resource not found (sample 0.1000 < 0.30)", sel.Check().Error())
}

func TestSeededDeterminism(t *testing.T) {
	a, b := NewSeeded(99), NewSeeded(99)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Float64(), b.Float64())
	}
}

func TestSourcesStayInRange(t *testing.T) {
	for name, src := range map[string]Source{
		"fast":   NewFast(),
		"secure": NewSecure(),
	} {
		for i := 0; i < 1000; i++ {
			v := src.Float64()
			require.GreaterOrEqual(t, v, 0.0, name)
			require.Less(t, v, 1.0, name)
		}
	}
}
