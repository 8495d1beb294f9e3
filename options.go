package groktest

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DecodeOptions parses the inline option grammar out of a trailing
// comment string (or a "test-options" string, or a dedicated
// front-matter value). pattern is the test-type's configured
// option_pattern; DefaultOptionPattern matches a full "+name",
// "-name", or "+name=value" token (name starting with a letter)
// including quoted values. When pattern finds nothing in text,
// DecodeOptions short-circuits to an empty map, so a token whose name
// starts with a digit, "_" or "-" is only decoded when some other
// token in the same text matches the pattern. When
// pattern does find at least one candidate token, the hand-rolled
// scanner below still does the actual decoding: it alone understands
// quote balancing and value coercion.
func DecodeOptions(text string, pattern *regexp.Regexp) (map[string]any, error) {
	if pattern != nil && !pattern.MatchString(text) {
		return map[string]any{}, nil
	}
	opts := make(map[string]any)
	s := text
	i := 0
	n := len(s)

	isSpace := func(c byte) bool { return c == ' ' || c == '\t' }
	isNameChar := func(c byte) bool {
		return c == '-' || c == '_' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
	}

	for i < n {
		if isSpace(s[i]) {
			i++
			continue
		}
		if s[i] != '+' && s[i] != '-' {
			// Stray word: ignored silently; skip to next whitespace.
			for i < n && !isSpace(s[i]) {
				i++
			}
			continue
		}
		sign := s[i]
		i++
		nameStart := i
		for i < n && isNameChar(s[i]) {
			i++
		}
		name := s[nameStart:i]
		if name == "" {
			// Bare "+" or "-": ignored silently.
			for i < n && !isSpace(s[i]) {
				i++
			}
			continue
		}

		if sign == '-' {
			// "-NAME" never carries a value, even if "=..." follows;
			// any such suffix is left for the next token scan and will
			// be silently ignored there.
			opts[name] = false
			continue
		}

		// sign == '+'
		save := i
		for i < n && isSpace(s[i]) {
			i++
		}
		if i < n && s[i] == '=' {
			i++
			for i < n && isSpace(s[i]) {
				i++
			}
			value, newI := scanOptionValue(s, i)
			i = newI
			opts[name] = coerceOptionValue(value)
			continue
		}
		// No '=' follows: "+NAME" -> true. Restore position in case we
		// consumed whitespace that belongs to the next token.
		i = save
		opts[name] = true
	}

	return opts, nil
}

// scanOptionValue reads a VALUE token starting at i: a balanced
// single/double-quoted string, or an unquoted token terminating at
// whitespace. An unbalanced quote degrades to a documented ambiguity:
// the first whitespace-delimited token following "=" is used as the
// raw value, stray quote included.
func scanOptionValue(s string, i int) (string, int) {
	n := len(s)
	if i >= n {
		return "", i
	}
	if s[i] == '"' || s[i] == '\'' {
		quote := s[i]
		close := strings.IndexByte(s[i+1:], quote)
		if close >= 0 {
			value := s[i+1 : i+1+close]
			return value, i + 1 + close + 1
		}
		// Unbalanced: degrade to the raw whitespace-delimited token,
		// including the stray quote character.
		j := i
		for j < n && s[j] != ' ' && s[j] != '\t' {
			j++
		}
		return s[i:j], j
	}
	j := i
	for j < n && s[j] != ' ' && s[j] != '\t' {
		j++
	}
	return s[i:j], j
}

var integerLike = regexp.MustCompile(`^-?[0-9]+$`)

// coerceOptionValue coerces integer-looking unquoted values to int;
// everything else is returned as a string.
func coerceOptionValue(raw string) any {
	if integerLike.MatchString(raw) {
		if n, err := strconv.Atoi(raw); err == nil {
			return n
		}
	}
	return raw
}

// ReencodeOptions serializes a decoded option map back into the inline
// grammar. The preview listing uses it to show each test's inline
// options, and the tests use it to check the decoder's idempotence:
// decoding the result of re-serializing a decoded map must yield the
// same map. Token order follows map iteration order.
func ReencodeOptions(opts map[string]any) string {
	var b strings.Builder
	for name, v := range opts {
		switch t := v.(type) {
		case bool:
			if t {
				fmt.Fprintf(&b, "+%s ", name)
			} else {
				fmt.Fprintf(&b, "-%s ", name)
			}
		case int:
			fmt.Fprintf(&b, "+%s=%d ", name, t)
		case string:
			if strings.ContainsAny(t, " \t") {
				fmt.Fprintf(&b, "+%s=%q ", name, t)
			} else {
				fmt.Fprintf(&b, "+%s=%s ", name, t)
			}
		}
	}
	return strings.TrimSpace(b.String())
}
