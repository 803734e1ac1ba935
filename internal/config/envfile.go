package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// expandEnvWithDefault expands $VAR, ${VAR} and ${VAR:-default}. The default
// applies when VAR is unset or empty.
func expandEnvWithDefault(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		value := os.Getenv(name)
		if value == "" && hasDefault {
			return fallback
		}
		return value
	})
}

func loadEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.TrimSpace(strings.TrimPrefix(raw, "export "))

		key, value, ok := strings.Cut(raw, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("load env file %q: invalid line %d", path, lineNo)
		}
		value, err := envFileValue(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("load env file %q: %s on line %d: %w", path, key, lineNo, err)
		}
		values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("load env file %q: %w", path, err)
	}
	return values, nil
}

// envFileValue unquotes a value. Double-quoted values take Go escapes and
// expansion, single-quoted values are literal, and bare values lose any
// trailing comment.
func envFileValue(value string) (string, error) {
	switch {
	case strings.HasPrefix(value, `"`):
		if len(value) < 2 || !strings.HasSuffix(value, `"`) {
			return "", fmt.Errorf("unmatched quote")
		}
		unquoted, err := strconv.Unquote(value)
		if err != nil {
			return "", err
		}
		return expandEnvWithDefault(unquoted), nil
	case strings.HasPrefix(value, "'"):
		if len(value) < 2 || !strings.HasSuffix(value, "'") {
			return "", fmt.Errorf("unmatched quote")
		}
		return value[1 : len(value)-1], nil
	}
	if comment := strings.IndexRune(value, '#'); comment >= 0 {
		value = strings.TrimSpace(value[:comment])
	}
	return expandEnvWithDefault(value), nil
}
