package expr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/expr"
)

func TestParseIdent(t *testing.T) {
	n, err := expr.Parse("x")
	require.NoError(t, err)
	require.Equal(t, expr.Ident{Name: "x"}, n)
}

func TestParseFieldAndIndexChain(t *testing.T) {
	n, err := expr.Parse("root.left.value")
	require.NoError(t, err)
	require.Equal(t, expr.Field{
		X:    expr.Field{X: expr.Ident{Name: "root"}, Name: "left"},
		Name: "value",
	}, n)

	n, err = expr.Parse("arr[3]")
	require.NoError(t, err)
	require.Equal(t, expr.Index{X: expr.Ident{Name: "arr"}, Idx: 3}, n)
}

func TestParseUnaryPrefixes(t *testing.T) {
	n, err := expr.Parse("*p")
	require.NoError(t, err)
	require.Equal(t, expr.Deref{X: expr.Ident{Name: "p"}}, n)

	n, err = expr.Parse("&x")
	require.NoError(t, err)
	require.Equal(t, expr.Addr{X: expr.Ident{Name: "x"}}, n)
}

func TestParseRejectsRepeatedPrefixOperator(t *testing.T) {
	_, err := expr.Parse("**x")
	require.Error(t, err)

	_, err = expr.Parse("&&x")
	require.Error(t, err)
}

func TestParseRejectsEmptyInput(t *testing.T) {
	_, err := expr.Parse("   ")
	require.Error(t, err)
}

func TestParseParenthesized(t *testing.T) {
	n, err := expr.Parse("(*p).value")
	require.NoError(t, err)
	require.Equal(t, expr.Field{X: expr.Deref{X: expr.Ident{Name: "p"}}, Name: "value"}, n)
}
