package groktest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gar1t/groktest/runtime"
)

// stubAdapter evaluates nothing; it returns canned output for each
// expression, so the runner's sequencing logic can be exercised without
// a real subprocess. sequence, when set for an expr, is consumed one
// entry at a time across successive calls (and across the fresh
// adapter instances RunDocument's retry-on-fail loop constructs, since
// the map itself — not the adapter holding it — is what's shared),
// falling back to responses once exhausted.
type stubAdapter struct {
	responses map[string]runtime.Output
	sequence  map[string][]runtime.Output
	bound     []map[string]any
	started   bool
}

// stubHolder records every adapter instance a stub Constructor builds,
// so a test can inspect state (like bound) left behind by whichever
// instance RunDocument actually drove — RunDocument's retry-on-fail
// loop constructs a new adapter per attempt, so the "current" instance
// isn't knowable until after RunDocument returns.
type stubHolder struct {
	mu        sync.Mutex
	instances []*stubAdapter
}

func (h *stubHolder) last() *stubAdapter {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.instances) == 0 {
		return nil
	}
	return h.instances[len(h.instances)-1]
}

func newStubAdapter(responses map[string]runtime.Output) runtime.Constructor {
	return func(workDir string) runtime.Adapter {
		return &stubAdapter{responses: responses}
	}
}

func newStubAdapterWithHolder(responses map[string]runtime.Output, sequence map[string][]runtime.Output, holder *stubHolder) runtime.Constructor {
	return func(workDir string) runtime.Adapter {
		a := &stubAdapter{responses: responses, sequence: sequence}
		holder.mu.Lock()
		holder.instances = append(holder.instances, a)
		holder.mu.Unlock()
		return a
	}
}

func (a *stubAdapter) Start(ctx context.Context) error { a.started = true; return nil }
func (a *stubAdapter) IsAvailable() bool               { return a.started }
func (a *stubAdapter) InitForTests(ctx context.Context, config map[string]any) error {
	return nil
}
func (a *stubAdapter) ExecTestExpr(ctx context.Context, expr string, options map[string]any) (runtime.Output, error) {
	if seq, ok := a.sequence[expr]; ok && len(seq) > 0 {
		out := seq[0]
		a.sequence[expr] = seq[1:]
		return out, nil
	}
	if out, ok := a.responses[expr]; ok {
		return out, nil
	}
	return runtime.Output{Code: 0, Output: ""}, nil
}
func (a *stubAdapter) HandleTestMatch(ctx context.Context, vars map[string]any) error {
	a.bound = append(a.bound, vars)
	return nil
}
func (a *stubAdapter) Stop() error { a.started = false; return nil }

func registerStub(t *testing.T, key string, responses map[string]runtime.Output) {
	t.Helper()
	runtime.Register(key, newStubAdapter(responses))
}

// registerStubWithHolder is registerStub plus a sequence-of-responses
// option and a *stubHolder the caller can inspect once RunDocument
// returns, for assertions that need to see the adapter instance's
// recorded state (e.g. bound) rather than just the RunResult.
func registerStubWithHolder(t *testing.T, key string, responses map[string]runtime.Output, sequence map[string][]runtime.Output) *stubHolder {
	t.Helper()
	holder := &stubHolder{}
	runtime.Register(key, newStubAdapterWithHolder(responses, sequence, holder))
	return holder
}

func testSpec(runtimeKey string) TestSpec {
	return TestSpec{
		Name:            "stub",
		PS1:             ">>>",
		PS2:             "...",
		TestPattern:     PythonSpec.TestPattern,
		OptionPattern:   DefaultOptionPattern,
		BlanklineMarker: "<BLANKLINE>",
		RuntimeKey:      runtimeKey,
	}
}

func TestRunDocument_AllPass(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1 + 1": {Code: 0, Output: "2"},
	})
	body := ">>> 1 + 1\n2\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunDocument_Failure(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1 + 1": {Code: 0, Output: "3"},
	})
	body := ">>> 1 + 1\n2\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 1, result.Summary.Failed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, []string{"doc.md:1"}, result.Summary.FailedLocations)
}

func TestRunDocument_SkipDirective(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"2 + 2": {Code: 0, Output: "4"},
	})
	body := ">>> 1 + 1 # +skip\n2\n>>> 2 + 2\n4\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 1, result.Summary.Skipped)
}

func TestRunDocument_SoloOnlyRunsSoloTests(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"2 + 2 # +solo": {Code: 0, Output: "4"},
	})
	body := ">>> 1 + 1\n2\n>>> 2 + 2 # +solo\n4\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 1, result.Summary.Skipped)
}

func TestRunDocument_SkipRestLatch(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1 # +skiprest": {Code: 0, Output: "1"},
	})
	body := ">>> 1 # +skiprest\n1\n>>> 2\n2\n>>> 3\n3\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Equal(t, 2, result.Summary.Skipped)
}

func TestRunDocument_FailFastSkipsRemaining(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1": {Code: 0, Output: "wrong"},
	})
	body := ">>> 1\n1\n>>> 2\n2\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{"fail-fast": true}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 1, result.Summary.Failed)
	assert.Equal(t, 1, result.Summary.Skipped)
}

func TestRunDocument_FailsOptionInverts(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1 / 0 # +fails": {Code: 1, Output: "ZeroDivisionError"},
	})
	body := ">>> 1 / 0 # +fails\nZeroDivisionError\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Failed)
}

func TestRunDocument_RetryOnFailEventuallySucceeds(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	sequence := map[string][]runtime.Output{
		"1 + 1": {
			{Code: 0, Output: "wrong"},
			{Code: 0, Output: "2"},
		},
	}
	registerStubWithHolder(t, key, nil, sequence)
	body := ">>> 1 + 1\n2\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{"retry-on-fail": 1}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Tested)
	assert.Equal(t, 0, result.Summary.Failed)
	assert.Empty(t, result.Failures)
}

func TestRunDocument_RetryOnFailGivesUpAfterLimit(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	registerStub(t, key, map[string]runtime.Output{
		"1 + 1": {Code: 0, Output: "wrong"},
	})
	body := ">>> 1 + 1\n2\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{"retry-on-fail": 2}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Summary.Failed)
}

func TestRunDocument_VariableBindingRecorded(t *testing.T) {
	key := fmt.Sprintf("stub-%s", t.Name())
	holder := registerStubWithHolder(t, key, map[string]runtime.Output{
		"n = 42 # +parse": {Code: 0, Output: "42"},
	}, nil)
	body := ">>> n = 42 # +parse\n{n:d}\n"

	result, err := RunDocument(context.Background(), "doc.md", body, testSpec(key), EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Summary.Failed)

	adapter := holder.last()
	require.NotNil(t, adapter)
	require.Len(t, adapter.bound, 1)
	assert.Equal(t, 42, adapter.bound[0]["n"])
}

func TestRunDocument_NothingTested(t *testing.T) {
	result, err := RunDocument(context.Background(), "doc.md", "just prose\n", PythonSpec, EffectiveOptions{}, RunConfig{})
	require.NoError(t, err)
	assert.True(t, result.Summary.NothingTested())
	assert.Equal(t, 2, result.Summary.ExitCode())
}

func TestSummary_ExitCode(t *testing.T) {
	assert.Equal(t, 2, Summary{Tested: 0}.ExitCode())
	assert.Equal(t, 1, Summary{Tested: 1, Failed: 1}.ExitCode())
	assert.Equal(t, 0, Summary{Tested: 1, Failed: 0}.ExitCode())
}
