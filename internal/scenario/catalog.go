package scenario

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/initify/flakie/examples/regression"
	"github.com/initify/flakie/examples/stable"
	"github.com/initify/flakie/internal/outcome"
)

const sharedKey = "sharedState"

// fetchTimeout bounds the wait on a fetch that never completes.
const fetchTimeout = 10 * time.Millisecond

// Default returns the demo catalog.
func Default() (*Catalog, error) {
	b := NewBuilder()

	b.Flaky("Race Condition Tests", "async operation without proper wait", 0.15, "value = <nil>; want completed").
		Flaky("Race Condition Tests", "concurrent array modifications", 0.25, "len(results) = 10; want 9")

	b.Flaky("Resource Dependent Tests", "memory intensive operation", 0.2, "memory increase exceeds limit of 1 byte").
		Flaky("Resource Dependent Tests", "CPU bound calculation with timeout", 0.15, "duration exceeds threshold of 1ms")

	b.Flaky("Network Dependent Tests", "unreliable external API call", 0.15, "Network timeout").
		Flaky("Network Dependent Tests", "DNS resolution timing", 0.1875, "elapsed exceeds 50ms")

	b.Steps("Order Dependent Tests", "shared state chain", 0.3,
		Step{Name: "set shared state", Run: func(_ context.Context, env *Env) error {
			miss, err := env.Draw(0.3)
			if err != nil {
				return err
			}
			v := 42
			if miss {
				v = 0
			}
			env.Set(sharedKey, v)
			return nil
		}},
		Step{Name: "read shared state", Run: func(_ context.Context, env *Env) error {
			if v, _ := env.Get(sharedKey); v != 42 {
				return env.Check(0.5, fmt.Sprintf("%s = %d; want 42", sharedKey, v))
			}
			return nil
		}},
		Step{Name: "double shared state", Run: func(_ context.Context, env *Env) error {
			v, _ := env.Get(sharedKey)
			v *= 2
			env.Set(sharedKey, v)
			if v != 84 {
				return &outcome.FlakyError{Message: fmt.Sprintf("%s = %d; want 84", sharedKey, v), Threshold: 0.3}
			}
			return nil
		}},
	)

	b.Flaky("Time Sensitive Tests", "date-based logic", 0.2, "hour is not 13").
		Flaky("Time Sensitive Tests", "timestamp precision", 0.25, "clock diff exceeds 0ms")

	const doc = "com.ansorgit.plugins.bash.documentation"
	b.Flaky("InternalCommandDocumentationTest", "testResourceName", 0.3, doc+": Resource not found").
		Flaky("InternalCommandDocumentationTest", "testResourceAvailability", 0.3, "Documentation resource temporarily unavailable").
		Stable("InternalCommandDocumentationTest", "testDocumentationFormat", func(context.Context, *Env) error {
			return expect(strings.ToLower("Markdown") == "markdown", "format mismatch")
		})

	b.Flaky("SystemInfopageDocSourceTest", "testInfoForFileExists", 0.25, doc+": File not found").
		Flaky("SystemInfopageDocSourceTest", "testSystemInfoAccess", 0.4, "System info access failed under memory pressure")

	b.Flaky("IntegrationTest", "testIntegration12", 0.4, "com.ansorgit.plugins.bash.lang.parser: integration failed").
		Flaky("IntegrationTest", "testIntegration15", 0.4, "Integration timeout exceeded").
		Flaky("IntegrationTest", "testIntegration18", 0.35, "Integration cycle incomplete")

	b.Flaky("SystemInfopageDocSourceTest extended", "testIntegration1", 0.3, doc).
		Flaky("SystemInfopageDocSourceTest extended", "testIntegration2", 1.0/6, "Remote source unavailable")

	b.Stable("Stable Test Suite", "configuration validation", func(context.Context, *Env) error {
		cfg := map[string]bool{"valid": true}
		return expect(cfg["valid"], "config invalid")
	}).
		Stable("Stable Test Suite", "basic operations", func(context.Context, *Env) error {
			return expect(stable.Sum(2, 2) == 4, "2 + 2 != 4")
		}).
		Stable("Stable Test Suite", "string operations", func(context.Context, *Env) error {
			return expect(len("TeamCity") == 8 && stable.Reverse("level") == "level", "string mismatch")
		})

	stableSuites(b)

	b.Regression("Known Regression Tests", "REGRESSION: parser bug should be fixed",
		"Parser regression: unexpected token at line 42", nil).
		Regression("Known Regression Tests", "REGRESSION: memory leak in validator",
			"Memory leak detected in validation module", nil)

	b.Regression("Bug Regression Tests", "REGRESSION: calculation bug in invoice total",
		"invoice total = 30; want 70", func(context.Context, *Env) error {
			items := []regression.LineItem{{Price: 10, Quantity: 2}, {Price: 15, Quantity: 3}, {Price: 5, Quantity: 1}}
			got := regression.InvoiceTotal(items)
			return expectRegression(got == 70, "invoice total = %d; want 70", got)
		}).
		Regression("Bug Regression Tests", "REGRESSION: null pointer in user service",
			"panic: runtime error: invalid memory address or nil pointer dereference", func(context.Context, *Env) error {
				var got string
				if err := noPanic(func() { got = regression.FullName(regression.User{ID: 1}) }); err != nil {
					return err
				}
				return expectRegression(got == "John Doe", "full name = %q; want %q", got, "John Doe")
			}).
		Regression("Bug Regression Tests", "REGRESSION: array index out of bounds",
			"panic: runtime error: index out of range [2] with length 2", func(context.Context, *Env) error {
				var got int
				if err := noPanic(func() { got = regression.ThirdElement([]int{1, 2}) }); err != nil {
					return err
				}
				return expectRegression(got == 3, "third element = %d; want 3", got)
			}).
		Regression("Bug Regression Tests", "REGRESSION: incorrect date formatting",
			`date = "2024-2-15"; want "2024-3-15"`, func(context.Context, *Env) error {
				got := regression.FormatDate(time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC))
				return expectRegression(got == "2024-3-15", "date = %q; want %q", got, "2024-3-15")
			}).
		Regression("Bug Regression Tests", "REGRESSION: async operation never completes",
			"fetch user data: context deadline exceeded", func(ctx context.Context, _ *Env) error {
				fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
				defer cancel()
				u, err := regression.FetchUserData(fetchCtx)
				if err != nil {
					if ctx.Err() != nil {
						return ctx.Err()
					}
					return outcome.Regressionf("fetch user data: %v", err)
				}
				return expectRegression(u.ID == 1 && u.Name == "Test User", "user = %+v", u)
			})

	b.Regression("Business Logic Errors", "FAILED: discount exceeds maximum allowed",
		"discount = 75; want <= 50", func(context.Context, *Env) error {
			got := regression.Discount(100, 75)
			return expectRegression(got <= 50, "discount = %v; want <= 50", got)
		}).
		Regression("Business Logic Errors", "FAILED: password validation missing special character check",
			"password without special character accepted", func(context.Context, *Env) error {
				return expectRegression(!regression.ValidPassword("Password123"), "password without special character accepted")
			}).
		Regression("Business Logic Errors", "FAILED: age verification allows minors",
			"minor allowed to purchase", func(context.Context, *Env) error {
				now := time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC)
				birth := time.Date(2003, time.June, 16, 0, 0, 0, 0, time.UTC)
				return expectRegression(!regression.CanPurchaseAlcohol(birth, now), "minor allowed to purchase")
			})

	b.Regression("Integration Errors", "FAILED: API response parsing error",
		"panic: runtime error: invalid memory address or nil pointer dereference", func(context.Context, *Env) error {
			return noPanic(func() {
				_, _ = regression.ItemIDs([]byte(`{"error":"No data available","status":200}`))
			})
		})
	b.Regression("Integration Errors", "FAILED: database connection string malformed",
		`connection string = "mongodb://localhost/27017/testdb"`, func(context.Context, *Env) error {
			got := regression.ConnectionString("localhost", 27017, "testdb")
			return expectRegression(got == "mongodb://localhost:27017/testdb", "connection string = %q", got)
		})

	return b.Build()
}

func expect(ok bool, msg string) error {
	if ok {
		return nil
	}
	return fmt.Errorf("assertion failed: %s", msg)
}

// noPanic runs fn and reports a panic as a regression.
func noPanic(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = outcome.Regressionf("panic: %v", r)
		}
	}()
	fn()
	return nil
}

func expectRegression(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return outcome.Regressionf(format, args...)
}
