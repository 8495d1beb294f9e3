// Package report renders a document run's failures and summary line to
// a terminal: the expected/got form by default, a unified diff when a
// failure's +diff option is set.
//
// Grounded on an OutputManager pattern (output/formatter.go style):
// lipgloss styles keyed by severity and a plain/no-color fallback when
// output isn't a TTY. The
// many export formats a general-purpose reporter might carry
// (CSV/HTML/Excel/Markdown) have no counterpart in this tool's
// external interfaces and are dropped; only the terminal path is in
// scope here.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
	"github.com/mattn/go-isatty"

	"github.com/gar1t/groktest"
	"github.com/gar1t/groktest/match"
)

// Reporter writes a document's failures and final summary to w. Styling
// is disabled automatically when w is not a TTY (e.g. piped output or
// test capture).
type Reporter struct {
	w      io.Writer
	color  bool
	styles styleSet
}

type styleSet struct {
	header  lipgloss.Style
	label   lipgloss.Style
	diffAdd lipgloss.Style
	diffDel lipgloss.Style
	pass    lipgloss.Style
	fail    lipgloss.Style
}

// New builds a Reporter writing to w. isTerminal should be the result of
// isatty.IsTerminal on w's underlying file descriptor when w is an
// *os.File; callers writing to a buffer pass false.
func New(w io.Writer, isTerminal bool) *Reporter {
	r := &Reporter{w: w, color: isTerminal}
	if isTerminal {
		r.styles = styleSet{
			header:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
			label:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
			diffAdd: lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
			diffDel: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
			pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("40")),
			fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		}
	}
	return r
}

// NewAuto builds a Reporter that detects TTY-ness from fd itself,
// making that choice at the os.Stdout call site rather than threading
// a bool through every caller.
func NewAuto(w io.Writer, fd uintptr) *Reporter {
	return New(w, isatty.IsTerminal(fd))
}

// Failure renders one failed test in expected/got form, or as a unified
// diff when diff is requested via the test's effective options.
func (r *Reporter) Failure(f groktest.Failure) {
	fmt.Fprintf(r.w, "File %q, line %d\n", f.Test.Filename, f.Test.Line)
	fmt.Fprintln(r.w, r.label("Failed example:"))
	fmt.Fprintln(r.w, indent(f.Test.Expr, 4))

	wantDiff := match.Options(f.Options).Bool("diff", false)
	if wantDiff {
		fmt.Fprintln(r.w, r.label("Diff:"))
		fmt.Fprintln(r.w, indent(r.diff(f.Expected, f.Actual), 2))
		return
	}

	fmt.Fprintln(r.w, r.label("Expected:"))
	if strings.TrimSpace(f.Expected) == "" {
		fmt.Fprintln(r.w, indent("Expected nothing", 4))
	} else {
		fmt.Fprintln(r.w, indent(f.Expected, 4))
	}
	fmt.Fprintln(r.w, r.label("Got:"))
	if strings.TrimSpace(f.Actual) == "" {
		fmt.Fprintln(r.w, indent("Got nothing", 4))
	} else {
		fmt.Fprintln(r.w, indent(f.Actual, 4))
	}
	if f.Message != "" {
		fmt.Fprintln(r.w, r.label(f.Message))
	}
}

// Summary renders the one-line terminal summary and returns it, in one
// of three fixed forms.
func (r *Reporter) Summary(s groktest.Summary) string {
	var line string
	switch {
	case s.NothingTested():
		line = "Nothing tested"
	case s.Failed > 0:
		noun := "test"
		if s.Failed != 1 {
			noun = "tests"
		}
		line = fmt.Sprintf("%d %s failed", s.Failed, noun)
	default:
		line = "All tests passed"
	}

	styled := line
	if r.color {
		if s.Failed > 0 || s.NothingTested() {
			styled = r.styles.fail.Render(line)
		} else {
			styled = r.styles.pass.Render(line)
		}
	}
	fmt.Fprintln(r.w, styled)
	return line
}

// diff renders a line-oriented unified diff of expected vs actual using
// go-cmp's line-splitting report, then recolors +/- lines when color is
// enabled.
func (r *Reporter) diff(expected, actual string) string {
	d := cmp.Diff(strings.Split(expected, "\n"), strings.Split(actual, "\n"))
	if !r.color {
		return d
	}
	var out []string
	for _, line := range strings.Split(d, "\n") {
		switch {
		case strings.HasPrefix(strings.TrimSpace(line), "-"):
			out = append(out, r.styles.diffDel.Render(line))
		case strings.HasPrefix(strings.TrimSpace(line), "+"):
			out = append(out, r.styles.diffAdd.Render(line))
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// PreviewEntry is one extracted test listed by --preview.
type PreviewEntry struct {
	Line    int
	Expr    string
	Options string
}

// Preview renders a document's extracted tests as a compact table,
// mirroring an OutputManager table rendering mode: a styled filename
// header followed by one indented row per test.
func (r *Reporter) Preview(filename string, entries []PreviewEntry) {
	header := fmt.Sprintf("%s (%d test%s)", filename, len(entries), plural(len(entries)))
	if r.color {
		header = r.styles.header.Render(header)
	}
	fmt.Fprintln(r.w, header)
	for _, e := range entries {
		row := fmt.Sprintf("line %d: %s", e.Line, e.Expr)
		if e.Options != "" {
			row += "  " + r.label(e.Options)
		}
		fmt.Fprintln(r.w, indent(row, 2))
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func (r *Reporter) label(s string) string {
	if !r.color {
		return s
	}
	return r.styles.label.Render(s)
}

func indent(s string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = pad + l
	}
	return strings.Join(lines, "\n")
}
