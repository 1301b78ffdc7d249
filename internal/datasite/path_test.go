package datasite

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCleanPath(t *testing.T) {
	require.Equal(t, "alice@example.com/public/notes.txt", CleanPath("/alice@example.com/public/notes.txt/"))
	require.Equal(t, "alice@example.com/notes.txt", CleanPath("alice@example.com\\notes.txt"))
}

func TestIsValidPath(t *testing.T) {
	require.True(t, IsValidPath("alice@example.com/public/notes.txt"))
	require.False(t, IsValidPath("notadatasite/notes.txt"))
	require.False(t, IsValidPath(""))
}

func TestExtractDatasiteName(t *testing.T) {
	require.Equal(t, "alice@example.com", ExtractDatasiteName("alice@example.com/public/notes.txt"))
	require.Equal(t, "", ExtractDatasiteName("not-an-email/notes.txt"))
}

func TestGetOwnerAndIsOwner(t *testing.T) {
	p := "alice@example.com/public/notes.txt"
	require.Equal(t, "alice@example.com", GetOwner(p))
	require.True(t, IsOwner(p, "alice@example.com"))
	require.False(t, IsOwner(p, "bob@example.com"))
}

func TestRelativePath(t *testing.T) {
	rp := NewRelativePath("/alice@example.com/public/notes.txt")
	require.Equal(t, RelativePath("alice@example.com/public/notes.txt"), rp)
	require.True(t, rp.IsValid())
	require.Equal(t, "alice@example.com", rp.Owner())
}
