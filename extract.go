package groktest

import (
	"fmt"
	"strings"
)

// ExtractError is a hard per-test parse error raised while walking a
// document body: either a missing space after a continuation prompt, or
// expected-output text whose indentation is inconsistent with its test's
// first prompt line. Either aborts extraction for the whole document.
type ExtractError struct {
	Filename string
	Line     int
	Reason   string
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("%s:%d: %s", e.Filename, e.Line, e.Reason)
}

// ExtractTests walks body (the document with front matter already
// stripped) and yields the ordered sequence of Test records for the
// given TestSpec. Extraction is a pure function: it never evaluates
// anything, only recognizes block boundaries.
//
// spec.TestPattern is checked first as a whole-document fast path: it
// recognizes the same indent+ps1 prompt boundary as matchPS1 below, so
// a document with no match at all has no tests and the line-by-line
// scan (which alone handles continuation lines, expected-block
// indentation checks, and option decoding) can be skipped entirely.
func ExtractTests(filename string, body string, spec TestSpec) ([]Test, error) {
	if spec.TestPattern != nil && !spec.TestPattern.MatchString(ensureTrailingNewline(body)) {
		return nil, nil
	}

	lines := splitKeepEmpty(body)

	var tests []Test
	i := 0
	for i < len(lines) {
		indent, firstExpr, ok := matchPS1(lines[i], spec.PS1)
		if !ok {
			i++
			continue
		}
		startLine := i + 1 // 1-based

		exprLines := []string{firstExpr}
		j := i + 1
		if spec.PS2 != "" {
			for j < len(lines) {
				cont, isCont, err := matchPS2(lines[j], indent, spec.PS2, filename, j+1)
				if err != nil {
					return nil, err
				}
				if !isCont {
					break
				}
				exprLines = append(exprLines, cont)
				j++
			}
		}
		exprText := strings.Join(exprLines, "\n")

		var rawExpected []string
		for j < len(lines) {
			line := lines[j]
			if strings.TrimSpace(line) == "" {
				break
			}
			if _, _, isPrompt := matchPS1(line, spec.PS1); isPrompt {
				break
			}
			lineIndent := leadingWhitespace(line)
			if len(lineIndent) < len(indent) {
				return nil, &ExtractError{
					Filename: filename,
					Line:     j + 1,
					Reason:   "inconsistent leading whitespace",
				}
			}
			rawExpected = append(rawExpected, strings.TrimPrefix(line, indent))
			j++
		}
		expected := strings.Join(rawExpected, "\n")

		comment := trailingComment(firstExpr)
		opts, err := DecodeOptions(comment, spec.OptionPattern)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", filename, startLine, err)
		}

		tests = append(tests, Test{
			Filename: filename,
			Line:     startLine,
			Indent:   indent,
			Expr:     exprText,
			Expected: expected,
			Options:  opts,
		})

		i = j
	}

	return tests, nil
}

// matchPS1 recognizes a line as a test's first prompt line: indent + ps1
// + " " + expression, or indent + ps1 alone (empty expression, used as
// an option-only directive).
func matchPS1(line, ps1 string) (indent, expr string, ok bool) {
	trimmed := line
	lead := leadingWhitespace(line)
	rest := trimmed[len(lead):]
	if rest == ps1 {
		return lead, "", true
	}
	prefix := ps1 + " "
	if strings.HasPrefix(rest, prefix) {
		return lead, rest[len(prefix):], true
	}
	return "", "", false
}

// matchPS2 recognizes a continuation line: it must begin with exactly
// indent, then ps2 followed by a mandatory single space (or ps2 alone on
// an otherwise empty continuation line). Any other prefix means this
// line is not a continuation at all (isCont=false, no error) UNLESS the
// line begins with indent+ps2 but without the required space, which is a
// hard parse error.
func matchPS2(line, indent, ps2, filename string, lineNo int) (content string, isCont bool, err error) {
	if !strings.HasPrefix(line, indent) {
		return "", false, nil
	}
	rest := line[len(indent):]
	if rest == ps2 {
		return "", true, nil
	}
	prefix := ps2 + " "
	if strings.HasPrefix(rest, prefix) {
		return rest[len(prefix):], true, nil
	}
	if strings.HasPrefix(rest, ps2) {
		return "", false, &ExtractError{
			Filename: filename,
			Line:     lineNo,
			Reason:   "space missing after prompt",
		}
	}
	return "", false, nil
}

func leadingWhitespace(s string) string {
	i := 0
	for i < len(s) && (s[i] == ' ' || s[i] == '\t') {
		i++
	}
	return s[:i]
}

// trailingComment extracts the "# ..." suffix of a line, if any, using
// the first "#" on the line; that "#" starts a comment only when it is
// the line's first character or follows a space or tab, otherwise the
// line has no comment. It intentionally does not
// understand string literals: a "#" inside a quoted string is still
// treated as a comment start, matching the option decoder's narrow
// remit — the full expression grammar belongs to the runtime, not
// the core.
func trailingComment(line string) string {
	idx := strings.Index(line, "#")
	if idx < 0 {
		return ""
	}
	if idx > 0 && line[idx-1] != ' ' && line[idx-1] != '\t' {
		return ""
	}
	return line[idx+1:]
}

// splitKeepEmpty splits on \n preserving a trailing empty line the way
// strings.Split does, so line numbers stay 1-based and stable.
func splitKeepEmpty(s string) []string {
	return strings.Split(s, "\n")
}

// ensureTrailingNewline appends a final "\n" when absent, so a test on
// the document's last line (with no newline after it) still satisfies
// TestPattern's `.*\n` prompt-line requirement.
func ensureTrailingNewline(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}
