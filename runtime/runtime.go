// Package runtime defines the narrow adapter contract the core runner
// uses to dispatch a single test expression to a long-lived subordinate
// interpreter process, and a registry of adapter constructors keyed by
// runtime_key, following the self-registration idiom of a package-level
// map populated by each adapter's own init().
package runtime

import "context"

// Output is the result of evaluating one test expression. Code==0 means
// the expression evaluated without a runtime exception; Code==1 means an
// exception occurred, and Output still carries the conventional
// traceback/error text the document is expected to compare against.
type Output struct {
	Code       int
	Output     string
	ShortError string
}

// Adapter is the contract the core interacts with a language runtime
// through. All calls are serialized by the caller; an Adapter need not be
// thread-safe.
type Adapter interface {
	Start(ctx context.Context) error
	IsAvailable() bool
	InitForTests(ctx context.Context, config map[string]any) error
	ExecTestExpr(ctx context.Context, expr string, options map[string]any) (Output, error)
	HandleTestMatch(ctx context.Context, vars map[string]any) error
	Stop() error
}

// Constructor builds a fresh Adapter instance for one test document.
type Constructor func(workDir string) Adapter

var registry = map[string]Constructor{}

// Register adds a named adapter constructor to the registry. Called from
// package-level init() functions in concrete adapter packages
// (runtime/python, runtime/shell), the same self-registration idiom the
// teacher uses for its language extractors and linters.
func Register(key string, ctor Constructor) {
	registry[key] = ctor
}

// Lookup returns the constructor registered for key, if any.
func Lookup(key string) (Constructor, bool) {
	ctor, ok := registry[key]
	return ctor, ok
}

// Keys returns the set of currently registered runtime keys.
func Keys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}
