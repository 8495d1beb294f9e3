// Package config resolves a document's effective configuration:
// project config discovered by walking upward from the document,
// CLI-synthesized flags, and front matter, deep-merged in that
// increasing order of precedence.
//
// Grounded on a ConfigLoader pattern of candidate-file search and
// validate-then-return-defaults, with the single-file default
// replaced by an ancestor walk and YAML replaced by a project table
// format (a "pyproject.toml's [tool.groktest] table").
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/flanksource/commons/logger"
	"github.com/pelletier/go-toml/v2"
)

// ProjectFileName is the project file searched for while walking
// upward from a document's directory.
const ProjectFileName = "pyproject.toml"

// aliasTable lifts top-level front-matter keys onto their canonical
// nested path. Keys already nested under the canonical root pass
// through untouched.
var aliasTable = map[string][]string{
	"test-options":     {"options"},
	"parse-types":      {"parse", "types"},
	"python-init":      {"python", "init"},
	"option-functions": {"option", "functions"},
}

// FindProjectFile walks upward from startDir looking for
// ProjectFileName, stopping once it passes a directory containing
// ".git" (the repository root) or reaches the filesystem root.
func FindProjectFile(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ProjectFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return ""
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadProjectConfig reads the "[tool.groktest]" table out of a
// pyproject.toml-shaped file discovered by FindProjectFile. A missing
// file, or a file with no such table, yields an empty mapping, not an
// error: project config is optional.
func LoadProjectConfig(startDir string) (map[string]any, error) {
	path := FindProjectFile(startDir)
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var doc struct {
		Tool struct {
			Groktest map[string]any `toml:"groktest"`
		} `toml:"tool"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		logger.Warnf("%s: malformed project config: %v", path, err)
		return map[string]any{}, nil
	}
	if doc.Tool.Groktest == nil {
		return map[string]any{}, nil
	}
	return doc.Tool.Groktest, nil
}

// LiftAliases rewrites fm's top-level friendly keys onto their
// canonical nested path, returning a new mapping. Unknown keys pass
// through unchanged.
func LiftAliases(fm map[string]any) map[string]any {
	out := map[string]any{}
	for k, v := range fm {
		path, aliased := aliasTable[k]
		if !aliased {
			out[k] = v
			continue
		}
		setNested(out, path, v)
	}
	return out
}

func setNested(m map[string]any, path []string, v any) {
	for _, key := range path[:len(path)-1] {
		next, ok := m[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[key] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

// Resolve deep-merges project config, CLI-synthesized config, and
// (alias-lifted) front matter, in that increasing order of precedence.
func Resolve(project, cli, frontMatter map[string]any) map[string]any {
	lifted := LiftAliases(frontMatter)
	merged := deepMerge(project, cli)
	return deepMerge(merged, lifted)
}

// deepMerge overlays override atop base: mappings merge key-wise,
// recursively; any other value type from override simply replaces the
// base value. Neither input is mutated.
func deepMerge(base, override map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		baseVal, baseHasMap := out[k].(map[string]any)
		overrideVal, overrideIsMap := v.(map[string]any)
		if baseHasMap && overrideIsMap {
			out[k] = deepMerge(baseVal, overrideVal)
			continue
		}
		out[k] = v
	}
	return out
}
