package repl

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitSetArgsWithEquals(t *testing.T) {
	target, literal, ok := splitSetArgs("foo.a = 100")
	require.True(t, ok)
	require.Equal(t, "foo.a", target)
	require.Equal(t, "100", literal)
}

func TestSplitSetArgsWithoutEquals(t *testing.T) {
	target, literal, ok := splitSetArgs("i 234")
	require.True(t, ok)
	require.Equal(t, "i", target)
	require.Equal(t, "234", literal)
}

func TestSplitSetArgsNoEqualsPreservesSpacesInLiteral(t *testing.T) {
	target, literal, ok := splitSetArgs(`s "hello world"`)
	require.True(t, ok)
	require.Equal(t, "s", target)
	require.Equal(t, `"hello world"`, literal)
}

func TestSplitSetArgsRejectsMissingLiteral(t *testing.T) {
	_, _, ok := splitSetArgs("i")
	require.False(t, ok)

	_, _, ok = splitSetArgs("")
	require.False(t, ok)
}
