package rsyncdiff

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	old := []byte("hello")
	sig, err := Signature(bytes.NewReader(old))
	require.NoError(t, err)

	diff, err := Diff(sig, []byte("hello world"))
	require.NoError(t, err)

	result, err := Apply(old, diff)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), result)
}

func TestRoundTripEmptyFile(t *testing.T) {
	old := []byte{}
	sig, err := Signature(bytes.NewReader(old))
	require.NoError(t, err)

	diff, err := Diff(sig, []byte{})
	require.NoError(t, err)

	result, err := Apply(old, diff)
	require.NoError(t, err)
	require.Empty(t, result)
}

func TestApplyCorruptDiff(t *testing.T) {
	_, err := Apply([]byte("hello"), []byte("not a valid gob stream"))
	require.ErrorIs(t, err, ErrCorruptDiff)
}

func TestRoundTripUnchangedContent(t *testing.T) {
	old := []byte("the quick brown fox jumps over the lazy dog")
	sig, err := Signature(bytes.NewReader(old))
	require.NoError(t, err)

	diff, err := Diff(sig, old)
	require.NoError(t, err)

	result, err := Apply(old, diff)
	require.NoError(t, err)
	require.Equal(t, old, result)
}
