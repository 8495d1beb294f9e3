package groktest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOptions_Flags(t *testing.T) {
	opts, err := DecodeOptions("+wildcard -case +retry-on-fail=3", DefaultOptionPattern)
	require.NoError(t, err)
	assert.Equal(t, true, opts["wildcard"])
	assert.Equal(t, false, opts["case"])
	assert.Equal(t, 3, opts["retry-on-fail"])
}

func TestDecodeOptions_QuotedValue(t *testing.T) {
	opts, err := DecodeOptions(`+wildcard="..."`, DefaultOptionPattern)
	require.NoError(t, err)
	assert.Equal(t, "...", opts["wildcard"])
}

func TestDecodeOptions_LastOccurrenceWins(t *testing.T) {
	opts, err := DecodeOptions("+skip -skip", DefaultOptionPattern)
	require.NoError(t, err)
	assert.Equal(t, false, opts["skip"])
}

func TestDecodeOptions_UnbalancedQuoteDegrades(t *testing.T) {
	opts, err := DecodeOptions(`+wildcard="abc`, DefaultOptionPattern)
	require.NoError(t, err)
	assert.Equal(t, `"abc`, opts["wildcard"])
}

func TestReencodeOptions_Idempotent(t *testing.T) {
	original := map[string]any{"wildcard": true, "case": false, "retry-on-fail": 2}
	reencoded := ReencodeOptions(original)
	decoded, err := DecodeOptions(reencoded, DefaultOptionPattern)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
