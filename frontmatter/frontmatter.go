// Package frontmatter recognizes and decodes the fenced header at the top
// of a groktest document: a leading line exactly "---", content, and a
// closing "---", tried in order as JSON, then TOML, then a simplified
// key/value dialect.
package frontmatter

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/flanksource/commons/logger"
	"github.com/pelletier/go-toml/v2"
)

const srcKey = "__src__"

// Parse splits filename's content into (frontMatter, body). frontMatter
// is always non-nil and always carries __src__ = filename; absence of a
// recognizable header yields an empty map and the whole document as
// body.
func Parse(filename, content string) (map[string]any, string) {
	inner, body, found := extractHeader(content)
	fm := map[string]any{}
	if found {
		fm = decode(filename, inner)
	}
	fm[srcKey] = filename
	return fm, body
}

// ParseFile reads filename and parses it.
func ParseFile(filename string) (map[string]any, string, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, "", fmt.Errorf("frontmatter: read %s: %w", filename, err)
	}
	fm, body := Parse(filename, string(data))
	return fm, body, nil
}

// extractHeader finds the fenced header: a "---" line (possibly after a
// single leading blank line) at the very top of the document, through
// the next line that is exactly "---".
func extractHeader(content string) (inner, body string, found bool) {
	lines := strings.Split(content, "\n")
	start := 0
	if start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start >= len(lines) || strings.TrimRight(lines[start], " \t\r") != "---" {
		return "", content, false
	}
	for i := start + 1; i < len(lines); i++ {
		if strings.TrimRight(lines[i], " \t\r") == "---" {
			inner = strings.Join(lines[start+1:i], "\n")
			body = strings.Join(lines[i+1:], "\n")
			return inner, body, true
		}
	}
	return "", content, false
}

// decode tries JSON, then TOML, then the simplified dialect, in that
// order; the first to yield a mapping wins. A non-mapping result (e.g. a
// bare scalar or list) is rejected with a diagnostic and treated as
// absent.
func decode(filename, inner string) map[string]any {
	trimmed := strings.TrimSpace(inner)
	if trimmed == "" {
		return map[string]any{}
	}

	if m, ok := tryJSON(trimmed); ok {
		return m
	}
	if m, ok := tryTOML(trimmed); ok {
		return m
	}
	m, err := parseSimpleDialect(inner)
	if err != nil {
		logger.Warnf("%s: malformed front matter: %v", filename, err)
		return map[string]any{}
	}
	return m
}

func tryJSON(text string) (map[string]any, bool) {
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

func tryTOML(text string) (map[string]any, bool) {
	var m map[string]any
	if err := toml.Unmarshal([]byte(text), &m); err != nil {
		return nil, false
	}
	return m, true
}

// parseSimpleDialect implements a simplified key/value
// dialect: "key: value" or "key = value" lines, with integer/float/bool
// coercion, "#"-comment lines, and no inline comment support (a "#"
// inside a value is part of the value).
func parseSimpleDialect(inner string) (map[string]any, error) {
	m := map[string]any{}
	for lineNo, raw := range strings.Split(inner, "\n") {
		line := strings.TrimRight(raw, " \t\r")
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, err := splitKeyValue(trimmed)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		m[key] = coerceScalar(value)
	}
	return m, nil
}

func splitKeyValue(line string) (key, value string, err error) {
	if idx := strings.Index(line, ":"); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), nil
	}
	if idx := strings.Index(line, "="); idx >= 0 {
		return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), nil
	}
	return "", "", fmt.Errorf("expected 'key: value' or 'key = value', got %q", line)
}

func coerceScalar(raw string) any {
	switch strings.ToLower(raw) {
	case "true", "yes":
		return true
	case "false", "no":
		return false
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}
