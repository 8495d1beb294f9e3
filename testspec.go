package groktest

import "regexp"

// buildTestPattern assembles the test-type's extraction regex from its
// prompt strings, with two named capture groups: indent and expected.
// Continuation lines (ps2) and the expected block that follows are
// matched greedily. ExtractTests uses the pattern only to check whether
// a document contains any prompt line at all; the line-by-line scan in
// extract.go does the actual slicing and validation (space-after-prompt,
// consistent indentation).
func buildTestPattern(ps1, ps2 string) *regexp.Regexp {
	q := regexp.QuoteMeta
	ps2Alt := ""
	if ps2 != "" {
		ps2Alt = `(?:[ \t]*` + q(ps2) + `.*\n)*`
	}
	pattern := `(?m)^(?P<indent>[ \t]*)` + q(ps1) + `(?: |$).*\n` + ps2Alt +
		`(?P<expected>(?:(?:[ \t]*\S.*)?\n)*)`
	// The expression text has no capture group of its own: the
	// extractor re-slices it from the raw lines.
	return regexp.MustCompile(pattern)
}

// DefaultOptionPattern recognizes +name, -name, and +name=value (quoted
// or bare) tokens in a trailing comment.
var DefaultOptionPattern = regexp.MustCompile(`[+-][A-Za-z][\w-]*(?:=(?:"[^"]*"|'[^']*'|\S+))?`)

// PythonSpec is the default doctest-like test type: >>> / ... prompts,
// the classic blank-line marker, and the "python" runtime.
var PythonSpec = TestSpec{
	Name:            "python-doctest",
	PS1:             ">>>",
	PS2:             "...",
	TestPattern:     buildTestPattern(">>>", "..."),
	OptionPattern:   DefaultOptionPattern,
	BlanklineMarker: "<BLANKLINE>",
	RuntimeKey:      "python",
}

// ShellSpec is the shell test type: a single ">" prompt, no continuation
// lines, and the "shell" runtime.
var ShellSpec = TestSpec{
	Name:            "shell",
	PS1:             ">",
	PS2:             "",
	TestPattern:     buildTestPattern(">", ""),
	OptionPattern:   DefaultOptionPattern,
	BlanklineMarker: "⤶",
	RuntimeKey:      "shell",
}

// Registry of built-in test specs keyed by the front-matter "test-type"
// value.
var BuiltinSpecs = map[string]TestSpec{
	"python": PythonSpec,
	"shell":  ShellSpec,
}
