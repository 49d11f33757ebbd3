package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// expand expands $(NAME), $(NAME:default) and $FUNC(args) references in value
func (c *Config) expand(value string) (string, error) {
	var b strings.Builder

	for i := 0; i < len(value); {
		if value[i] != '$' {
			b.WriteByte(value[i])
			i++
			continue
		}

		// Regular macro $(VAR)
		if i+1 < len(value) && value[i+1] == '(' {
			end := matchParen(value, i+1)
			if end == -1 {
				return "", fmt.Errorf("unmatched parentheses in macro: %s", value[i:])
			}
			replacement, err := c.expandVariable(value[i+2 : end])
			if err != nil {
				return "", err
			}
			b.WriteString(replacement)
			i = end + 1
			continue
		}

		// Function macro $FUNC(args)
		if name, open, ok := functionCall(value, i); ok {
			end := matchParen(value, open)
			if end == -1 {
				return "", fmt.Errorf("invalid function call: missing closing paren")
			}
			replacement, known, err := c.evaluateFunctionMacro(name, value[open+1:end])
			if err != nil {
				return "", err
			}
			if known {
				b.WriteString(replacement)
				i = end + 1
				continue
			}
		}

		// Anything else is a literal dollar sign
		b.WriteByte('$')
		i++
	}

	return b.String(), nil
}

// expandVariable resolves the body of a $(...) reference
func (c *Config) expandVariable(content string) (string, error) {
	// Nested macros in the name or default, e.g. $(A_$(B)) or $(A:$(B))
	if strings.Contains(content, "$") {
		expanded, err := c.expand(content)
		if err != nil {
			return "", err
		}
		content = expanded
	}

	name, defaultVal, _ := strings.Cut(content, ":")

	raw, ok := c.values[name]
	if !ok {
		return defaultVal, nil
	}

	if c.evaluating[name] {
		return "", fmt.Errorf("circular reference detected: %s", name)
	}
	c.evaluating[name] = true
	defer delete(c.evaluating, name)

	return c.expand(raw)
}

// evaluateFunctionMacro evaluates function-style macros like $ENV(VAR).
// known is false for function names this package does not implement,
// in which case the text is kept literally.
func (c *Config) evaluateFunctionMacro(name, args string) (string, bool, error) {
	expandedArgs, err := c.expand(args)
	if err != nil {
		return "", true, err
	}

	switch name {
	case "ENV":
		val, err := c.evalENV(expandedArgs)
		return val, true, err
	case "INT":
		val, err := c.evalINT(expandedArgs)
		return val, true, err
	case "DIRNAME":
		return filepath.Dir(strings.TrimSpace(expandedArgs)), true, nil
	case "BASENAME":
		return filepath.Base(strings.TrimSpace(expandedArgs)), true, nil
	default:
		return "", false, nil
	}
}

// evalENV returns an environment variable value
func (c *Config) evalENV(args string) (string, error) {
	varName := strings.TrimSpace(args)
	if varName == "" {
		return "", fmt.Errorf("ENV requires variable name")
	}
	return os.Getenv(varName), nil
}

// evalINT converts a value to an integer
func (c *Config) evalINT(args string) (string, error) {
	value := strings.TrimSpace(args)
	if value == "" {
		return "0", nil
	}

	// Parse as float first so "3.14" becomes "3"
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return "", fmt.Errorf("INT: cannot convert %q to integer", value)
	}
	return fmt.Sprintf("%d", int64(f)), nil
}

// functionCall reports whether value[i:] starts with $NAME( and returns the
// upper-cased name and the index of the opening paren
func functionCall(value string, i int) (string, int, bool) {
	j := i + 1
	for j < len(value) && isNameByte(value[j]) {
		j++
	}
	if j == i+1 || j >= len(value) || value[j] != '(' {
		return "", 0, false
	}
	return strings.ToUpper(value[i+1 : j]), j, true
}

func isNameByte(b byte) bool {
	return b == '_' || (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z')
}

// matchParen returns the index of the paren closing the one at open, or -1
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}
