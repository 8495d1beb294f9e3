package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	groktest "github.com/gar1t/groktest"
	gtconfig "github.com/gar1t/groktest/config"
	"github.com/gar1t/groktest/frontmatter"
	"github.com/gar1t/groktest/internal/session"
	"github.com/gar1t/groktest/match"
	"github.com/gar1t/groktest/report"
)

// defaultSuiteGlob is tried under a resolved PROJECT [SUITE] directory
// when the caller supplies no explicit file list, per the positional
// argument grammar.
const defaultSuiteGlob = "**/*.md"

func runRoot(c *cobra.Command, args []string) error {
	if debug {
		logger.Infof("debug logging enabled")
	}

	files, err := resolveFiles(args)
	if err != nil {
		return err
	}
	if last {
		savedFiles, _, loadErr := session.Load()
		if loadErr != nil {
			return loadErr
		}
		if len(savedFiles) > 0 {
			files = savedFiles
		}
	}
	if len(files) == 0 {
		fmt.Println("Nothing tested")
		return cleanExit(2)
	}

	cliOptions := map[string]any{}
	if failFast {
		cliOptions["fail-fast"] = true
	}

	if preview {
		return runPreview(files)
	}

	r := report.NewAuto(os.Stdout, os.Stdout.Fd())

	ctx := c.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	results, err := runAll(ctx, files, cliOptions, r)
	if err != nil {
		return err
	}

	if !last {
		if saveErr := session.Save(files, cliOptions); saveErr != nil {
			logger.Warnf("could not persist last-session record: %v", saveErr)
		}
	}

	combined := combineSummaries(results)
	r.Summary(combined)
	return cleanExit(combined.ExitCode())
}

// runAll executes every document, using errgroup to parallelize across
// documents only: each document owns its own runtime process, so there
// is no shared state for concurrent runs to race on.
func runAll(ctx context.Context, files []string, cliOptions map[string]any, r *report.Reporter) ([]groktest.RunResult, error) {
	results := make([]groktest.RunResult, len(files))

	limit := concurrency
	if limit < 1 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := runOneDocument(gctx, f, cliOptions)
			if err != nil {
				return fmt.Errorf("%s: %w", f, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, res := range results {
		for _, failure := range res.Failures {
			r.Failure(failure)
		}
	}
	return results, nil
}

func runOneDocument(ctx context.Context, filename string, cliOptions map[string]any) (groktest.RunResult, error) {
	fm, body, err := frontmatter.ParseFile(filename)
	if err != nil {
		return groktest.RunResult{}, err
	}

	project, err := gtconfig.LoadProjectConfig(filepath.Dir(filename))
	if err != nil {
		return groktest.RunResult{}, err
	}

	resolved := gtconfig.Resolve(project, cliOptions, fm)
	docOptions := groktest.EffectiveOptions(flattenOptions(resolved))

	testType := docOptions.String("test-type", "python")
	spec, ok := groktest.BuiltinSpecs[testType]
	if !ok {
		return groktest.RunResult{}, fmt.Errorf("unknown test-type %q", testType)
	}

	cfg := groktest.RunConfig{
		WorkDir:     filepath.Dir(filename),
		RuntimeInit: resolved,
		ParseTypes:  buildParseTypes(resolved),
		ShowSkipped: showSkipped,
	}

	return groktest.RunDocument(ctx, filename, body, spec, docOptions, cfg)
}

// buildParseTypes converts the resolved "parse.types" table (lifted from
// a document's "parse-types" front matter, or set directly in project
// config) into the match.ParseType set RunDocument needs. Each entry's
// value is a plain regex pattern string; anything else is skipped.
func buildParseTypes(resolved map[string]any) map[string]match.ParseType {
	parseSection, ok := resolved["parse"].(map[string]any)
	if !ok {
		return nil
	}
	rawTypes, ok := parseSection["types"].(map[string]any)
	if !ok {
		return nil
	}
	types := make(map[string]match.ParseType, len(rawTypes))
	for name, v := range rawTypes {
		pattern, ok := v.(string)
		if !ok {
			continue
		}
		types[name] = match.ParseType{Pattern: pattern}
	}
	return types
}

// flattenOptions merges resolved["options"] (if present) atop the rest
// of resolved, so that both front-matter's dedicated "options" table
// and bare top-level keys like "test-type" are visible to
// EffectiveOptions lookups. A string "options" value (such as
// "test-options: +parse") is decoded with the inline option grammar.
func flattenOptions(resolved map[string]any) map[string]any {
	out := make(map[string]any, len(resolved))
	for k, v := range resolved {
		out[k] = v
	}
	switch nested := resolved["options"].(type) {
	case map[string]any:
		for k, v := range nested {
			out[k] = v
		}
	case string:
		decoded, _ := groktest.DecodeOptions(nested, groktest.DefaultOptionPattern)
		for k, v := range decoded {
			out[k] = v
		}
	}
	return out
}

func runPreview(files []string) error {
	r := report.NewAuto(os.Stdout, os.Stdout.Fd())
	for _, filename := range files {
		fm, body, err := frontmatter.ParseFile(filename)
		if err != nil {
			return err
		}
		docOptions := groktest.EffectiveOptions(flattenOptions(fm))
		testType := docOptions.String("test-type", "python")
		spec, ok := groktest.BuiltinSpecs[testType]
		if !ok {
			return fmt.Errorf("%s: unknown test-type %q", filename, testType)
		}
		tests, err := groktest.ExtractTests(filename, body, spec)
		if err != nil {
			return err
		}
		entries := make([]report.PreviewEntry, len(tests))
		for i, t := range tests {
			entries[i] = report.PreviewEntry{
				Line:    t.Line,
				Expr:    firstLine(t.Expr),
				Options: groktest.ReencodeOptions(t.Options),
			}
		}
		r.Preview(filename, entries)
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}

func combineSummaries(results []groktest.RunResult) groktest.Summary {
	var out groktest.Summary
	for _, r := range results {
		out.Tested += r.Summary.Tested
		out.Failed += r.Summary.Failed
		out.Skipped += r.Summary.Skipped
		out.FailedLocations = append(out.FailedLocations, r.Summary.FailedLocations...)
	}
	return out
}

// resolveFiles implements the `[PROJECT [SUITE]] | [FILE...]` argument
// grammar: arguments that resolve to existing files are taken
// literally; otherwise the first argument is a project directory (and
// the second, if present, a suite subdirectory) searched with
// defaultSuiteGlob.
func resolveFiles(args []string) ([]string, error) {
	if len(args) == 0 {
		return doublestar.FilepathGlob(defaultSuiteGlob)
	}

	allExist := true
	for _, a := range args {
		if info, err := os.Stat(a); err != nil || info.IsDir() {
			allExist = false
			break
		}
	}
	if allExist {
		sorted := append([]string(nil), args...)
		sort.Strings(sorted)
		return sorted, nil
	}

	dir := args[0]
	if len(args) > 1 {
		dir = filepath.Join(args[0], args[1])
	}
	pattern := filepath.Join(dir, defaultSuiteGlob)
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// cleanExit wraps os.Exit so RunE can still return nil for a 0 exit
// without Cobra printing usage on failure paths that aren't usage
// errors.
func cleanExit(code int) error {
	if code == 0 {
		return nil
	}
	os.Exit(code)
	return nil
}
