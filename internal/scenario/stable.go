package scenario

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/initify/flakie/examples/stable"
)

var errTest = errors.New("test error")

func closeTo(got, want float64) bool { return math.Abs(got-want) < 5e-6 }

// stableSuites registers the deterministic suites that must pass on every
// run, whatever the entropy source.
func stableSuites(b *Builder) {
	const (
		maths   = "Stable Mathematical Operations"
		strs    = "Stable String Operations"
		objects = "Stable Object Operations"
		async   = "Stable Async Operations"
		errs    = "Stable Error Handling"
		data    = "Stable Data Structures"
	)

	b.Stable(maths, "basic arithmetic operations", func(context.Context, *Env) error {
		a, c := 10, 3
		return expect(stable.Sum(2, 2) == 4 && a-5 == 5 && c*4 == 12 && 15/c == 5, "arithmetic mismatch")
	}).
		Stable(maths, "mathematical constants", func(context.Context, *Env) error {
			return expect(closeTo(math.Pi, 3.14159) && closeTo(math.E, 2.71828) && closeTo(math.Sqrt2, 1.41421), "constant drifted")
		}).
		Stable(maths, "array operations", func(context.Context, *Env) error {
			arr := []int{1, 2, 3, 4, 5}
			doubled := make([]int, 0, len(arr))
			for _, x := range arr {
				doubled = append(doubled, x*2)
			}
			return expect(len(arr) == 5 &&
				stable.Sum(arr...) == 15 &&
				slices.Equal(stable.Filter(arr, func(x int) bool { return x > 3 }), []int{4, 5}) &&
				slices.Equal(doubled, []int{2, 4, 6, 8, 10}), "array mismatch")
		})

	b.Stable(strs, "string manipulation", func(context.Context, *Env) error {
		s := "TeamCity Intelligence"
		return expect(len(s) == 21 &&
			strings.ToUpper(s) == "TEAMCITY INTELLIGENCE" &&
			strings.ToLower(s) == "teamcity intelligence" &&
			strings.Contains(s, "Intelligence"), "string mismatch")
	}).
		Stable(strs, "string parsing", func(context.Context, *Env) error {
			n, err := strconv.Atoi("42")
			if err != nil {
				return err
			}
			f, err := strconv.ParseFloat("3.14", 64)
			if err != nil {
				return err
			}
			return expect(n == 42 &&
				math.Abs(f-3.14) < 0.005 &&
				slices.Equal(strings.Split("hello,world", ","), []string{"hello", "world"}) &&
				strings.Join([]string{"Team", "City"}, "") == "TeamCity", "parse mismatch")
		})

	b.Stable(objects, "object creation and access", func(context.Context, *Env) error {
		obj := struct {
			Name     string
			Version  float64
			Features []string
		}{"TeamCity", 2023.11, []string{"CI", "CD", "Test Intelligence"}}
		return expect(obj.Name == "TeamCity" && obj.Version == 2023.11 &&
			len(obj.Features) == 3 && obj.Features[2] == "Test Intelligence", "object mismatch")
	}).
		Stable(objects, "object methods", func(context.Context, *Env) error {
			obj := map[string]int{"a": 1, "b": 2, "c": 3}
			keys := make([]string, 0, len(obj))
			for k := range obj {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			values := make([]int, 0, len(keys))
			for _, k := range keys {
				values = append(values, obj[k])
			}
			return expect(slices.Equal(keys, []string{"a", "b", "c"}) && slices.Equal(values, []int{1, 2, 3}), "map mismatch")
		})

	b.Stable(async, "resolved promises", func(context.Context, *Env) error {
		done := make(chan string, 1)
		done <- "success"
		return expect(<-done == "success", "unexpected result")
	}).
		Stable(async, "async/await with timeout", func(ctx context.Context, _ *Env) error {
			const delay = time.Millisecond
			start := time.Now()
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			return expect(time.Since(start) >= delay, "timer fired early")
		}).
		Stable(async, "promise all", func(ctx context.Context, _ *Env) error {
			results := make([]int, 3)
			g, _ := errgroup.WithContext(ctx)
			for i := range results {
				i := i
				g.Go(func() error {
					results[i] = i + 1
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}
			return expect(slices.Equal(results, []int{1, 2, 3}), "results out of order")
		})

	b.Stable(errs, "throwing and catching errors", func(context.Context, *Env) error {
		err := fmt.Errorf("wrapped: %w", errTest)
		return expect(errors.Is(err, errTest) && err.Error() == "wrapped: test error", "error not matched")
	}).
		Stable(errs, "try-catch blocks", func(context.Context, *Env) error {
			caught := false
			func() {
				defer func() {
					if recover() != nil {
						caught = true
					}
				}()
				panic("caught error")
			}()
			return expect(caught, "panic not recovered")
		})

	b.Stable(data, "Set operations", func(context.Context, *Env) error {
		set := stable.Unique([]int{1, 2, 3, 3, 4})
		return expect(len(set) == 4 && slices.Contains(set, 3) && !slices.Contains(set, 5), "set mismatch")
	}).
		Stable(data, "Map operations", func(context.Context, *Env) error {
			m := map[string]string{}
			m["key1"] = "value1"
			m["key2"] = "value2"
			_, ok := m["key2"]
			return expect(len(m) == 2 && m["key1"] == "value1" && ok, "map mismatch")
		})
}
