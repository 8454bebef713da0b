package toolexec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolverJoinsRelativePaths(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	resolved, err := r.Resolve("sub/dir/file.txt")
	require.NoError(t, err)
	require.Equal(t, "/workspace/sub/dir/file.txt", resolved)
}

func TestResolverRejectsEscape(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	_, err := r.Resolve("../outside.txt")
	require.Error(t, err)
}

func TestResolverRejectsEmptyPath(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	_, err := r.Resolve("")
	require.Error(t, err)
}

func TestResolverAbsolutePathWithinRoot(t *testing.T) {
	r := Resolver{Root: "/workspace"}
	resolved, err := r.Resolve("/workspace/file.txt")
	require.NoError(t, err)
	require.Equal(t, "/workspace/file.txt", resolved)
}
