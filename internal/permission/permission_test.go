package permission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIsPermissionFile(t *testing.T) {
	require.True(t, IsPermissionFile("alice@example.com/public/_.syftperm"))
	require.False(t, IsPermissionFile("alice@example.com/public/notes.txt"))
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]byte(`{"admin":["alice@example.com"],"read":[],"write":["bob@example.com"]}`)))
	require.Error(t, Validate([]byte(`not json`)))
	require.Error(t, Validate([]byte(`{"admin":["alice@example.com"],"read":[]}`)))
	require.Error(t, Validate([]byte(`{"admin":"alice@example.com","read":[],"write":[]}`)))
}

func TestParse(t *testing.T) {
	spec, err := Parse([]byte(`{"admin":["alice@example.com"],"read":["bob@example.com"],"write":[]}`))
	require.NoError(t, err)
	require.Equal(t, []string{"alice@example.com"}, spec.Admin)
	require.Equal(t, []string{"bob@example.com"}, spec.Read)
	require.Empty(t, spec.Write)
}
