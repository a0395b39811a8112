package pgwire

import (
	"fmt"
	"strings"
)

// EscapeIdentifier quotes a SQL identifier such as a savepoint or prepared
// statement name. Embedded quotes are doubled; a NUL byte is rejected the
// way the server would reject it.
func EscapeIdentifier(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("pgwire: empty identifier")
	}
	if strings.ContainsRune(name, 0) {
		return "", fmt.Errorf("pgwire: identifier contains a NUL byte")
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`, nil
}

// EscapeLiteral quotes a string literal for inclusion in SQL text.
func EscapeLiteral(s string) (string, error) {
	if strings.ContainsRune(s, 0) {
		return "", fmt.Errorf("pgwire: literal contains a NUL byte")
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}
