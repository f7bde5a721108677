package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfdbg/cdbg/errkind"
)

func TestParseIntLiteralDecimalAndHex(t *testing.T) {
	v, err := parseIntLiteral("42")
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	v, err = parseIntLiteral("-7")
	require.NoError(t, err)
	require.Equal(t, int64(-7), v)

	v, err = parseIntLiteral("0x2a")
	require.NoError(t, err)
	require.Equal(t, int64(42), v)

	v, err = parseIntLiteral("+5")
	require.NoError(t, err)
	require.Equal(t, int64(5), v)

	_, err = parseIntLiteral("nope")
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestParseCharLiteral(t *testing.T) {
	v, err := parseCharLiteral("'a'")
	require.NoError(t, err)
	require.Equal(t, int64('a'), v)

	v, err = parseCharLiteral("'\\n'")
	require.NoError(t, err)
	require.Equal(t, int64('\n'), v)

	v, err = parseCharLiteral("'\\0'")
	require.NoError(t, err)
	require.Equal(t, int64(0), v)

	_, err = parseCharLiteral("abc")
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestParseStringLiteral(t *testing.T) {
	s, err := parseStringLiteral(`"hello"`)
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	s, err = parseStringLiteral(`"a\nb"`)
	require.NoError(t, err)
	require.Equal(t, "a\nb", s)

	_, err = parseStringLiteral("hello")
	require.ErrorIs(t, err, errkind.InvalidValue)
}

func TestIsIntLiteralText(t *testing.T) {
	require.True(t, isIntLiteralText("42"))
	require.True(t, isIntLiteralText("-42"))
	require.True(t, isIntLiteralText("0x2a"))
	require.False(t, isIntLiteralText("null"))
	require.False(t, isIntLiteralText(""))
}
