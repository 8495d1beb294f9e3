// Package match implements groktest's expected-vs-actual comparison
// engine: literal string matching (optionally with a wildcard token) and
// parse-expression matching with named, typed captures. It has no
// dependency on the root groktest package so that the runner can import
// both without a cycle; options are passed as plain maps.
package match

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Options is the effective, already-merged option set for a single test.
type Options map[string]any

func (o Options) Bool(name string, def bool) bool {
	v, ok := o[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "0" && t != "false"
	default:
		return def
	}
}

// String mirrors groktest.EffectiveOptions.String: a bare boolean true
// resolves to the caller's default (so "+wildcard" alone means "use the
// default token"), false resolves to empty.
func (o Options) String(name, def string) string {
	v, ok := o[name]
	if !ok {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return def
		}
		return ""
	default:
		return def
	}
}

// Result is the outcome of a single comparison.
type Result struct {
	Matched bool
	Vars    map[string]any
}

// ParseType defines a named placeholder type: the regex fragment it
// compiles to, and an optional coercion applied to the matched substring.
// Built-in types are registered by BuiltinParseTypes; the "parse.types"
// front-matter key supplies additional ones, by default returning the
// raw matched string.
type ParseType struct {
	Pattern string
	Coerce  func(string) any
}

// BuiltinParseTypes returns the built-in placeholder types: d (decimal
// integer), w (word characters), s (whitespace).
func BuiltinParseTypes() map[string]ParseType {
	return map[string]ParseType{
		"d": {Pattern: `-?[0-9]+`, Coerce: func(s string) any {
			n, _ := strconv.Atoi(s)
			return n
		}},
		"w": {Pattern: `\w+`},
		"s": {Pattern: `\s+`},
	}
}

const wildcardSentinel = "\x00GROKTEST_WILDCARD\x00"

// Match compares expected against actual under opts. defaultMarker is
// the test-type's blank-line marker; customTypes
// supplements BuiltinParseTypes with any parse.types registrations.
func Match(expected, actual string, opts Options, defaultMarker string, customTypes map[string]ParseType) (Result, error) {
	marker := defaultMarker
	if s, ok := opts["blankline"].(string); ok && s != "" {
		marker = s
	}
	if opts.Bool("blankline", true) && marker != "" {
		expected = substituteBlankMarker(expected, marker)
	}

	if opts.Bool("paths", true) {
		switch opts.String("paths", "/") {
		case "/":
			actual = strings.ReplaceAll(actual, "\\", "/")
		case "\\":
			actual = strings.ReplaceAll(actual, "/", "\\")
		}
	}

	if !opts.Bool("space", true) {
		expected = collapseSpacePerLine(expected)
		actual = collapseSpacePerLine(actual)
	}

	caseInsensitive := !opts.Bool("case", true)
	parseEnabled := opts.Bool("parse", false)
	wildcardEnabled := opts.Bool("wildcard", false)
	wildcardToken := opts.String("wildcard", "...")

	if parseEnabled {
		return parseMatch(expected, actual, caseInsensitive, wildcardEnabled, wildcardToken, customTypes)
	}
	if wildcardEnabled {
		return wildcardMatch(expected, actual, wildcardToken, caseInsensitive), nil
	}

	e, a := expected, actual
	if caseInsensitive {
		e, a = strings.ToLower(e), strings.ToLower(a)
	}
	return Result{Matched: e == a}, nil
}

// substituteBlankMarker replaces any expected-output line that is
// exactly the blank-line marker with a literal empty line.
func substituteBlankMarker(expected, marker string) string {
	if expected == "" {
		return expected
	}
	lines := strings.Split(expected, "\n")
	for i, l := range lines {
		if l == marker {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}

// collapseSpacePerLine collapses runs of whitespace to a single space and
// trims each line, without folding across line boundaries.
func collapseSpacePerLine(s string) string {
	lines := strings.Split(s, "\n")
	ws := regexp.MustCompile(`[ \t]+`)
	for i, l := range lines {
		lines[i] = strings.TrimSpace(ws.ReplaceAllString(l, " "))
	}
	return strings.Join(lines, "\n")
}

// wildcardMatch implements the literal-string strategy's wildcard
// extension: split expected at the wildcard token, anchor-match each
// literal segment left-to-right against actual.
func wildcardMatch(expected, actual, token string, ci bool) Result {
	segments := strings.Split(expected, token)
	workingActual := actual
	fold := func(s string) string {
		if ci {
			return strings.ToLower(s)
		}
		return s
	}
	workingActual = fold(workingActual)

	if len(segments) == 1 {
		return Result{Matched: workingActual == fold(segments[0])}
	}

	pos := 0
	for idx, seg := range segments {
		s := fold(seg)
		switch {
		case idx == 0:
			if !strings.HasPrefix(workingActual, s) {
				return Result{}
			}
			pos = len(s)
		case idx == len(segments)-1:
			if !strings.HasSuffix(workingActual, s) {
				return Result{}
			}
			if suffixStart := len(workingActual) - len(s); suffixStart < pos {
				return Result{}
			}
		default:
			i := strings.Index(workingActual[pos:], s)
			if i < 0 {
				return Result{}
			}
			pos += i + len(s)
		}
	}
	return Result{Matched: true}
}

type placeholder struct {
	groupName string
	varName   string
	coerce    func(string) any
}

// parseMatch compiles expected as a brace-placeholder format string into
// an anchored regular expression and matches it against actual. When
// expected contains no placeholders this degenerates to exact
// equality (the same behavior as literal+wildcard=false).
func parseMatch(expected, actual string, ci, wildcardEnabled bool, wildcardToken string, customTypes map[string]ParseType) (Result, error) {
	if wildcardEnabled && wildcardToken != "" {
		expected = strings.ReplaceAll(expected, wildcardToken, wildcardSentinel)
	}

	types := BuiltinParseTypes()
	for name, t := range customTypes {
		types[name] = t
	}

	var pattern strings.Builder
	var placeholders []placeholder
	seen := map[string]int{}

	i := 0
	n := len(expected)
	flushLiteral := func(lit string) {
		for {
			idx := strings.Index(lit, wildcardSentinel)
			if idx < 0 {
				pattern.WriteString(regexp.QuoteMeta(lit))
				return
			}
			pattern.WriteString(regexp.QuoteMeta(lit[:idx]))
			pattern.WriteString(`(?s:.*?)`)
			lit = lit[idx+len(wildcardSentinel):]
		}
	}

	litStart := 0
	for i < n {
		switch expected[i] {
		case '{':
			if i+1 < n && expected[i+1] == '{' {
				flushLiteral(expected[litStart:i] + "{")
				i += 2
				litStart = i
				continue
			}
			close := strings.IndexByte(expected[i:], '}')
			if close < 0 {
				i++
				continue
			}
			flushLiteral(expected[litStart:i])
			body := expected[i+1 : i+close]
			name, typ := body, ""
			if idx := strings.Index(body, ":"); idx >= 0 {
				name, typ = body[:idx], body[idx+1:]
			}
			pt, hasType := types[typ]
			fragment := `(?s:.+?)`
			var coerce func(string) any
			if typ != "" && hasType {
				fragment = pt.Pattern
				coerce = pt.Coerce
			}
			groupName := ""
			if name != "" {
				seen[name]++
				groupName = fmt.Sprintf("%s_%d", sanitizeGroupName(name), seen[name])
				pattern.WriteString(fmt.Sprintf(`(?P<%s>%s)`, groupName, fragment))
			} else {
				pattern.WriteString(fmt.Sprintf(`(?:%s)`, fragment))
			}
			if name != "" {
				placeholders = append(placeholders, placeholder{groupName: groupName, varName: name, coerce: coerce})
			}
			i += close + 1
			litStart = i
		case '}':
			if i+1 < n && expected[i+1] == '}' {
				flushLiteral(expected[litStart:i] + "}")
				i += 2
				litStart = i
				continue
			}
			i++
		default:
			i++
		}
	}
	flushLiteral(expected[litStart:])

	full := "^" + pattern.String() + "$"
	if ci {
		full = "(?i)" + full
	}
	re, err := regexp.Compile(full)
	if err != nil {
		return Result{}, fmt.Errorf("invalid parse expression: %w", err)
	}

	m := re.FindStringSubmatch(actual)
	if m == nil {
		return Result{}, nil
	}

	vars := map[string]any{}
	names := re.SubexpNames()
	byGroup := map[string]string{}
	for idx, gn := range names {
		if gn != "" {
			byGroup[gn] = m[idx]
		}
	}
	for _, p := range placeholders {
		raw := byGroup[p.groupName]
		if p.coerce != nil {
			vars[p.varName] = p.coerce(raw)
		} else {
			vars[p.varName] = raw
		}
	}

	return Result{Matched: true, Vars: vars}, nil
}

func sanitizeGroupName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
