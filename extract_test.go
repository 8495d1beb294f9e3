package groktest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTests_SimplePythonBlock(t *testing.T) {
	body := "Some prose.\n\n" +
		">>> 1 + 1\n" +
		"2\n\n" +
		"More prose.\n"

	tests, err := ExtractTests("doc.md", body, PythonSpec)
	require.NoError(t, err)
	require.Len(t, tests, 1)

	assert.Equal(t, 3, tests[0].Line)
	assert.Equal(t, "1 + 1", tests[0].Expr)
	assert.Equal(t, "2", tests[0].Expected)
}

func TestExtractTests_ContinuationLines(t *testing.T) {
	body := ">>> def f(x):\n" +
		"...     return x + 1\n" +
		">>> f(1)\n" +
		"2\n"

	tests, err := ExtractTests("doc.md", body, PythonSpec)
	require.NoError(t, err)
	require.Len(t, tests, 2)
	assert.Equal(t, "def f(x):\n    return x + 1", tests[0].Expr)
	assert.Equal(t, "", tests[0].Expected)
	assert.Equal(t, "f(1)", tests[1].Expr)
	assert.Equal(t, "2", tests[1].Expected)
}

func TestExtractTests_InconsistentIndentation(t *testing.T) {
	body := "  >>> 1\n" +
		"1\n"

	_, err := ExtractTests("doc.md", body, PythonSpec)
	require.Error(t, err)
	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "inconsistent leading whitespace")
}

func TestExtractTests_MissingSpaceAfterPrompt(t *testing.T) {
	body := ">>> def f():\n" +
		"...pass\n"

	_, err := ExtractTests("doc.md", body, PythonSpec)
	require.Error(t, err)
	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	assert.Contains(t, extractErr.Reason, "space missing after prompt")
}

func TestExtractTests_OptionOnlyDirective(t *testing.T) {
	body := ">>> # +skip\n"

	tests, err := ExtractTests("doc.md", body, PythonSpec)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "# +skip", tests[0].Expr)
	assert.Equal(t, true, tests[0].Options["skip"])
}

func TestExtractTests_ShellSpec(t *testing.T) {
	body := "> echo hi\n" +
		"hi\n"

	tests, err := ExtractTests("doc.md", body, ShellSpec)
	require.NoError(t, err)
	require.Len(t, tests, 1)
	assert.Equal(t, "echo hi", tests[0].Expr)
	assert.Equal(t, "hi", tests[0].Expected)
}

func TestExtractTests_NothingTested(t *testing.T) {
	tests, err := ExtractTests("doc.md", "just prose, no prompts\n", PythonSpec)
	require.NoError(t, err)
	assert.Empty(t, tests)
}
