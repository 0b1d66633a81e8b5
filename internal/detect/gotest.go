package detect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	reRun    = regexp.MustCompile(`^=== RUN\s+(\S+)`)
	rePass   = regexp.MustCompile(`^\s*--- PASS: \s*(\S+)`)
	reFail   = regexp.MustCompile(`^\s*--- FAIL: \s*(\S+)`)
	rePkg    = regexp.MustCompile(`^\?\s+([^\s]+)\s+\[no test files\]|^ok\s+([^\s]+)|^FAIL\s+([^\s]+)`)
	reBroken = regexp.MustCompile(`^FAIL\s+(\S+)\s+\[(build|setup) failed\]`)
)

// NoTestsRan is recorded as a failing entry for a run whose output holds
// no `=== RUN` line at all.
const NoTestsRan = "(no tests ran)"

// Parsed is what one `go test -v` output contributed.
type Parsed struct {
	Packages []string
	// Broken lists packages that failed to build or set up.
	Broken []string
	// Tests counts `=== RUN` lines.
	Tests int
}

// ParseGoTest reads `go test -v` output into stats.
func ParseGoTest(r io.Reader, stats *Stats) (Parsed, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	seen := map[string]bool{}
	var p Parsed
	for scanner.Scan() {
		line := scanner.Text()
		if m := reBroken.FindStringSubmatch(line); m != nil {
			p.Broken = append(p.Broken, m[1])
		}
		if m := rePkg.FindStringSubmatch(line); m != nil {
			for _, g := range m[1:] {
				if g != "" && !seen[g] {
					seen[g] = true
					p.Packages = append(p.Packages, g)
					break
				}
			}
			continue
		}
		if m := reRun.FindStringSubmatch(line); m != nil {
			p.Tests++
			stats.Seen(m[1])
			continue
		}
		if m := rePass.FindStringSubmatch(line); m != nil {
			stats.Record(m[1], true)
			continue
		}
		if m := reFail.FindStringSubmatch(line); m != nil {
			stats.Record(m[1], false)
		}
	}
	if err := scanner.Err(); err != nil {
		return p, fmt.Errorf("scan test output: %w", err)
	}
	return p, nil
}

// ExecFunc runs a command in dir and returns its combined output.
type ExecFunc func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

func execCombined(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

type Options struct {
	Dir       string
	Pkg       string
	Runs      int
	Timeout   time.Duration
	Race      bool
	Tags      string
	ExtraArgs string

	Exec   ExecFunc
	Logger *zap.Logger
}

func (o Options) args() []string {
	pkg := o.Pkg
	if pkg == "" {
		pkg = "./..."
	}
	args := []string{"test", pkg, "-count=1", "-run", ".", "-v"}
	if o.Race {
		args = append(args, "-race")
	}
	if o.Tags != "" {
		args = append(args, "-tags", o.Tags)
	}
	if strings.TrimSpace(o.ExtraArgs) != "" {
		// naive split on spaces
		args = append(args, strings.Fields(o.ExtraArgs)...)
	}
	return args
}

// RunGoTest runs the package pattern o.Runs times and summarizes the
// outcomes. A non-zero exit of `go test` is expected when tests fail and
// is not an error; cancellation of ctx is, and so is any failure to start
// the command. Packages that fail to build count as failing tests.
func RunGoTest(ctx context.Context, o Options) (Summary, error) {
	if o.Runs < 1 {
		return Summary{}, fmt.Errorf("runs must be >= 1, got %d", o.Runs)
	}
	run := o.Exec
	if run == nil {
		run = execCombined
	}
	log := o.Logger
	if log == nil {
		log = zap.NewNop()
	}

	stats := NewStats()
	pkgSet := map[string]bool{}
	var pkgs []string
	args := o.args()
	for i := 1; i <= o.Runs; i++ {
		if err := ctx.Err(); err != nil {
			return Summary{}, err
		}
		out, err := runOnce(ctx, o.Timeout, func(ctx context.Context) ([]byte, error) {
			return run(ctx, o.Dir, "go", args...)
		})
		log.Debug("go test finished", zap.Int("run", i), zap.Int("bytes", len(out)), zap.Error(err))
		if err != nil {
			if cerr := ctx.Err(); cerr != nil {
				return Summary{}, cerr
			}
			// failing tests exit non-zero; anything else means go test never ran
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				return Summary{}, fmt.Errorf("run %d: %w", i, err)
			}
		}

		parsed, scanErr := ParseGoTest(bytes.NewReader(out), stats)
		if scanErr != nil {
			log.Warn("parse go test output", zap.Int("run", i), zap.Error(scanErr))
		}
		for _, p := range parsed.Broken {
			log.Warn("package did not build", zap.Int("run", i), zap.String("package", p))
			stats.Record(p+" [build failed]", false)
		}
		if parsed.Tests == 0 && len(parsed.Broken) == 0 {
			log.Warn("no tests ran", zap.Int("run", i))
			stats.Record(NoTestsRan, false)
		}
		for _, p := range parsed.Packages {
			if !pkgSet[p] {
				pkgSet[p] = true
				pkgs = append(pkgs, p)
			}
		}
	}
	return Summarize(o.Runs, pkgs, stats.Snapshot()), nil
}

func runOnce(ctx context.Context, timeout time.Duration, fn func(context.Context) ([]byte, error)) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
