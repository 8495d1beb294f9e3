package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gar1t/groktest"
)

func TestFailure_ExpectedGotForm(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Failure(groktest.Failure{
		Test: groktest.Test{
			Filename: "doc.md",
			Line:     7,
			Expr:     "1 + 1",
		},
		Expected: "2",
		Actual:   "3",
	})

	out := buf.String()
	assert.Contains(t, out, `File "doc.md", line 7`)
	assert.Contains(t, out, "Failed example:")
	assert.Contains(t, out, "1 + 1")
	assert.Contains(t, out, "Expected:")
	assert.Contains(t, out, "2")
	assert.Contains(t, out, "Got:")
	assert.Contains(t, out, "3")
}

func TestFailure_EmptyExpectedAndActual(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Failure(groktest.Failure{
		Test:     groktest.Test{Filename: "doc.md", Line: 1, Expr: "print()"},
		Expected: "",
		Actual:   "",
	})

	out := buf.String()
	assert.Contains(t, out, "Expected nothing")
	assert.Contains(t, out, "Got nothing")
}

func TestFailure_DiffOption(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Failure(groktest.Failure{
		Test: groktest.Test{
			Filename: "doc.md",
			Line:     3,
			Expr:     "show()",
		},
		Options:  groktest.EffectiveOptions{"diff": true},
		Expected: "a\nb\nc",
		Actual:   "a\nx\nc",
	})

	out := buf.String()
	assert.Contains(t, out, "Diff:")
	assert.NotContains(t, out, "Expected:")
}

func TestFailure_DiffOptionFromDocumentLevel(t *testing.T) {
	// A document-level "test-options: +diff" (or any other non-inline
	// source) must reach the reporter the same as an inline +diff on
	// the failing line itself — Options carries the merged effective
	// set, not the test's raw inline options.
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Failure(groktest.Failure{
		Test: groktest.Test{
			Filename: "doc.md",
			Line:     3,
			Expr:     "show()",
			Options:  map[string]any{},
		},
		Options:  groktest.EffectiveOptions{"diff": true},
		Expected: "a\nb\nc",
		Actual:   "a\nx\nc",
	})

	out := buf.String()
	assert.Contains(t, out, "Diff:")
	assert.NotContains(t, out, "Expected:")
}

func TestSummary_Forms(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)

	assert.Equal(t, "Nothing tested", r.Summary(groktest.Summary{Tested: 0}))
	assert.Equal(t, "All tests passed", r.Summary(groktest.Summary{Tested: 3, Failed: 0}))
	assert.Equal(t, "1 test failed", r.Summary(groktest.Summary{Tested: 3, Failed: 1}))
	assert.Equal(t, "2 tests failed", r.Summary(groktest.Summary{Tested: 3, Failed: 2}))
}

func TestPreview_ListsEntries(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)

	r.Preview("doc.md", []PreviewEntry{
		{Line: 3, Expr: "1 + 1", Options: "+skip"},
		{Line: 9, Expr: "2 + 2"},
	})

	out := buf.String()
	assert.Contains(t, out, "doc.md (2 tests)")
	assert.Contains(t, out, "line 3: 1 + 1")
	assert.Contains(t, out, "+skip")
	assert.Contains(t, out, "line 9: 2 + 2")
}

func TestSummary_NoColorEscapesWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	r := New(&buf, false)
	r.Summary(groktest.Summary{Tested: 1, Failed: 1})
	assert.NotContains(t, buf.String(), "\x1b[")
}
