package groktest

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/gar1t/groktest/match"
	"github.com/gar1t/groktest/runtime"
)

// Failure is one reported mismatch, carrying everything the reporter
// needs to render either the expected/got form or a diff. Options is
// the test's fully merged effective option set (document defaults,
// front matter, and the test's own inline options), not the test's
// raw inline options alone — a document-level "+diff" must reach the
// reporter the same as an inline one.
type Failure struct {
	Test     Test
	Options  EffectiveOptions
	Message  string
	Actual   string
	Expected string
}

// RunResult is a document run's full outcome: the terminal summary plus
// the ordered list of failures behind it.
type RunResult struct {
	Summary  Summary
	Failures []Failure
}

// RunConfig bundles everything RunDocument needs beyond the document's
// own text: the resolved runtime key's working directory, the config
// handed to InitForTests, and any document-supplied parse.types.
type RunConfig struct {
	WorkDir     string
	RuntimeInit map[string]any
	ParseTypes  map[string]match.ParseType
	ShowSkipped bool
}

// RunDocument extracts and executes filename's tests under spec, with
// docOptions as the already-resolved effective document-level options
// (project config, CLI-synthesized flags, and front matter already
// deep-merged). It implements the full run sequencing, including the
// retry-on-fail outer loop.
func RunDocument(ctx context.Context, filename, body string, spec TestSpec, docOptions EffectiveOptions, cfg RunConfig) (RunResult, error) {
	tests, err := ExtractTests(filename, body, spec)
	if err != nil {
		return RunResult{}, err
	}
	if len(tests) == 0 {
		return RunResult{Summary: Summary{Tested: 0}}, nil
	}

	retries := docOptions.Int("retry-on-fail", 0)
	var result RunResult
	for attempt := 0; ; attempt++ {
		result, err = runOnce(ctx, filename, tests, spec, docOptions, cfg)
		if err != nil {
			return RunResult{}, err
		}
		if result.Summary.Failed == 0 || attempt >= retries {
			break
		}
		logger.Debugf("%s: retrying after %d failure(s) (attempt %d/%d)", filename, result.Summary.Failed, attempt+1, retries)
	}
	return result, nil
}

func runOnce(ctx context.Context, filename string, tests []Test, spec TestSpec, docOptions EffectiveOptions, cfg RunConfig) (RunResult, error) {
	ctor, ok := runtime.Lookup(spec.RuntimeKey)
	if !ok {
		return RunResult{}, fmt.Errorf("%s: no runtime registered for %q", filename, spec.RuntimeKey)
	}
	adapter := ctor(cfg.WorkDir)
	if err := adapter.Start(ctx); err != nil {
		return RunResult{}, fmt.Errorf("%s: starting %s runtime: %w", filename, spec.RuntimeKey, err)
	}
	defer func() {
		if err := adapter.Stop(); err != nil {
			logger.Warnf("%s: stopping %s runtime: %v", filename, spec.RuntimeKey, err)
		}
	}()

	if err := adapter.InitForTests(ctx, cfg.RuntimeInit); err != nil {
		return RunResult{}, fmt.Errorf("%s: init_for_tests: %w", filename, err)
	}

	soloActive := false
	for _, t := range tests {
		if EffectiveOptions(t.Options).Bool("solo", false) {
			soloActive = true
			break
		}
	}

	var summary Summary
	var failures []Failure
	skipRest := false

	for i, t := range tests {
		effective := docOptions.Merge(EffectiveOptions(t.Options))

		if skipRest && !isExplicitFalse(t.Options, "skiprest") {
			summary.Skipped++
			continue
		}
		if skipRest && isExplicitFalse(t.Options, "skiprest") {
			skipRest = false
		}
		if soloActive && !effective.Bool("solo", false) {
			summary.Skipped++
			continue
		}
		if skipped := evalSkip(effective["skip"]); skipped {
			summary.Skipped++
			continue
		}

		if isOptionOnlyExpr(t.Expr) {
			// Only a trailing comment: a no-op pass, used purely as a
			// vehicle for option directives like "+skiprest".
			if effective.Bool("skiprest", false) {
				skipRest = true
			}
			continue
		}

		summary.Tested++

		out, err := adapter.ExecTestExpr(ctx, t.Expr, effective)
		if err != nil {
			return RunResult{}, fmt.Errorf("%s:%d: exec_test_expr: %w", filename, t.Line, err)
		}

		matchResult, err := match.Match(t.Expected, out.Output, match.Options(effective), spec.BlanklineMarker, cfg.ParseTypes)
		if err != nil {
			return RunResult{}, fmt.Errorf("%s:%d: %w", filename, t.Line, err)
		}

		passed := matchResult.Matched
		failMsg := ""
		if effective.Bool("fails", false) {
			if passed {
				passed = false
				failMsg = "expected test to fail but passed"
			} else {
				passed = true
			}
		}

		if passed && matchResult.Matched && len(matchResult.Vars) > 0 {
			if err := adapter.HandleTestMatch(ctx, matchResult.Vars); err != nil {
				return RunResult{}, fmt.Errorf("%s:%d: handle_test_match: %w", filename, t.Line, err)
			}
		}

		if !passed {
			summary.Failed++
			summary.FailedLocations = append(summary.FailedLocations, fmt.Sprintf("%s:%d", filename, t.Line))
			if failMsg == "" {
				failMsg = "expected output did not match"
			}
			failures = append(failures, Failure{
				Test:     t,
				Options:  effective,
				Message:  failMsg,
				Actual:   out.Output,
				Expected: t.Expected,
			})
		}

		if effective.Bool("skiprest", false) {
			skipRest = true
		}

		if docOptions.Bool("fail-fast", false) && !passed {
			for _, rest := range tests[i+1:] {
				if !isOptionOnlyExpr(rest.Expr) {
					summary.Skipped++
				}
			}
			break
		}
	}

	return RunResult{Summary: summary, Failures: failures}, nil
}

// isExplicitFalse reports whether name was explicitly set to false (a
// "-name" token) in a test's own options, as opposed to simply absent.
func isExplicitFalse(opts map[string]any, name string) bool {
	v, ok := opts[name]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && !b
}

// isOptionOnlyExpr reports whether expr, once a trailing "# ..." comment
// is stripped from its first line, contains nothing but whitespace —
// the "empty expression (only a comment)" case.
func isOptionOnlyExpr(expr string) bool {
	lines := strings.Split(expr, "\n")
	if len(lines) == 0 {
		return true
	}
	first := lines[0]
	if idx := strings.IndexByte(first, '#'); idx >= 0 && (idx == 0 || first[idx-1] == ' ' || first[idx-1] == '\t') {
		first = first[:idx]
	}
	lines[0] = first
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			return false
		}
	}
	return true
}

// evalSkip implements the value-based skip grammar: a bare true/false,
// "+skip=NAME" (skip when env var NAME is set and non-empty), or
// "+skip=!NAME" (skip when NAME is unset or empty).
func evalSkip(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		if strings.HasPrefix(t, "!") {
			return os.Getenv(t[1:]) == ""
		}
		return os.Getenv(t) != ""
	default:
		return false
	}
}
