package cliutil

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[redacted]"

var secretMarkers = []string{
	"PASSWORD",
	"PASSWD",
	"SECRET",
	"TOKEN",
	"API_KEY",
	"API-KEY",
	"ACCESS_KEY",
	"PRIVATE_KEY",
	"CREDENTIALS",
}

var secretKeyPattern = regexp.MustCompile(`(?i)\b([a-z0-9_-]*(?:` + quoteAll(secretMarkers) + `)[a-z0-9_-]*)(\s*[:=]\s*)(["']?)([^"'\s]+)(["']?)`)

func quoteAll(markers []string) string {
	escaped := make([]string, len(markers))
	for i, marker := range markers {
		escaped[i] = regexp.QuoteMeta(marker)
	}
	return strings.Join(escaped, "|")
}

// RedactSecrets masks the values of secret-looking key assignments such as
// DB_PASSWORD=hunter2 or --api-key=abc so command lines can be logged.
func RedactSecrets(message string) string {
	if message == "" {
		return message
	}
	return secretKeyPattern.ReplaceAllString(message, "$1$2$3"+redactedPlaceholder+"$5")
}

// RedactArgs applies RedactSecrets to every argument. A secret-looking flag
// given as its own argument also hides the argument that follows it.
func RedactArgs(args []string) []string {
	out := make([]string, len(args))
	hideNext := false
	for i, arg := range args {
		if hideNext {
			out[i] = redactedPlaceholder
			hideNext = false
			continue
		}
		out[i] = RedactSecrets(arg)
		if strings.HasPrefix(arg, "-") && !strings.Contains(arg, "=") && IsSecretName(strings.TrimLeft(arg, "-")) {
			hideNext = true
		}
	}
	return out
}

// IsSecretName reports whether a variable or flag name looks like it holds a
// credential.
func IsSecretName(name string) bool {
	upper := strings.ToUpper(name)
	for _, marker := range secretMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}
