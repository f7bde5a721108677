package expr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dwarfdbg/cdbg/errkind"
)

// parseIntLiteral accepts the integer forms the set grammar allows:
// decimal ("42", "-7"), hex ("0x2a", "-0x1"), and a leading '+' sign.
func parseIntLiteral(s string) (int64, error) {
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		s = s[2:]
	}
	u, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, fmt.Errorf("not an integer literal: %w", errkind.InvalidValue)
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return v, nil
}

// parseCharLiteral accepts 'a'-style single-quoted character literals,
// including the common C escapes.
func parseCharLiteral(s string) (int64, error) {
	if len(s) < 3 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return 0, fmt.Errorf("not a char literal: %w", errkind.InvalidValue)
	}
	body := s[1 : len(s)-1]
	if len(body) == 1 {
		return int64(body[0]), nil
	}
	if len(body) == 2 && body[0] == '\\' {
		switch body[1] {
		case 'n':
			return int64('\n'), nil
		case 't':
			return int64('\t'), nil
		case '0':
			return 0, nil
		case '\\':
			return int64('\\'), nil
		case '\'':
			return int64('\''), nil
		}
	}
	return 0, fmt.Errorf("not a char literal: %w", errkind.InvalidValue)
}

// parseStringLiteral accepts "..."-quoted strings using Go's own escape
// rules, which are a superset of C's for the common cases (\n, \t, \\,
// \").
func parseStringLiteral(s string) (string, error) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", fmt.Errorf("not a string literal: %w", errkind.InvalidValue)
	}
	unq, err := strconv.Unquote(s)
	if err != nil {
		return "", fmt.Errorf("not a string literal: %w", errkind.InvalidValue)
	}
	return unq, nil
}

func isIntLiteralText(s string) bool {
	t := s
	if strings.HasPrefix(t, "-") || strings.HasPrefix(t, "+") {
		t = t[1:]
	}
	if t == "" {
		return false
	}
	for _, c := range t {
		if c < '0' || c > '9' {
			if !(strings.HasPrefix(t, "0x") || strings.HasPrefix(t, "0X")) {
				return false
			}
		}
	}
	return true
}
