package outcome

import (
	"errors"
	"fmt"
)

// FlakyError is a simulated non-deterministic failure. Re-running may pass.
type FlakyError struct {
	Message   string
	Sample    float64
	Threshold Threshold
	// Drawn is set when Sample came from a Source.
	Drawn bool
}

func (e *FlakyError) Error() string {
	if !e.Drawn {
		return e.Message
	}
	return fmt.Sprintf("%s (sample %.4f < %.2f)", e.Message, e.Sample, float64(e.Threshold))
}

// RegressionError is a simulated permanent defect. It fails every run.
type RegressionError struct {
	Message string
}

func (e *RegressionError) Error() string { return e.Message }

// Regressionf returns a RegressionError with the formatted message.
func Regressionf(format string, args ...any) error {
	return &RegressionError{Message: fmt.Sprintf(format, args...)}
}

// Kind is the category of one invocation's result.
type Kind int

const (
	Pass Kind = iota
	Flaky
	Regression
	Unexpected
)

func (k Kind) String() string {
	switch k {
	case Pass:
		return "pass"
	case Flaky:
		return "flaky"
	case Regression:
		return "regression"
	default:
		return "unexpected"
	}
}

// Classify maps an invocation error to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return Pass
	}
	var fe *FlakyError
	if errors.As(err, &fe) {
		return Flaky
	}
	var re *RegressionError
	if errors.As(err, &re) {
		return Regression
	}
	return Unexpected
}

// Message returns the descriptive failure message carried by err.
func Message(err error) string {
	var fe *FlakyError
	if errors.As(err, &fe) {
		return fe.Message
	}
	var re *RegressionError
	if errors.As(err, &re) {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
