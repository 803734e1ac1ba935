package config

import (
	"strings"
	"testing"
)

func TestParseByteSize(t *testing.T) {
	cases := map[string]ByteSize{
		"1024":  1024,
		"512k":  512 * 1024,
		"4MiB":  4 * 1024 * 1024,
		"1g":    1024 * 1024 * 1024,
		"10 MB": 10 * 1024 * 1024,
	}
	for in, want := range cases {
		got, err := ParseByteSize(in)
		if err != nil {
			t.Fatalf("ParseByteSize(%q): %v", in, err)
		}
		if got != want {
			t.Errorf("ParseByteSize(%q) = %d want %d", in, got, want)
		}
	}
	if _, err := ParseByteSize("lots"); err == nil {
		t.Fatalf("expected an error for a non-size")
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	cfg := Default()
	cfg.Logging.Format = "xml"
	cfg.Logging.Level = "loud"
	cfg.MaxBuffer = -1
	cfg.Env = map[string]string{"A=B": "x"}

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{"logging.format", "logging.level", "maxBuffer", "invalid variable name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	cfg.Metrics.Textfile = "from-file.prom"
	values := map[string]string{
		EnvLogFormat:       "json",
		EnvLogLevel:        "",
		EnvMetricsTextfile: "override.prom",
	}
	cfg.applyOverrides(func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	})
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected format override, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("empty override should be ignored, got %q", cfg.Logging.Level)
	}
	if cfg.Metrics.Textfile != "override.prom" {
		t.Fatalf("expected textfile override, got %q", cfg.Metrics.Textfile)
	}
}

func TestExpandEnvWithDefault(t *testing.T) {
	t.Setenv("PORTEXEC_SET", "value")
	t.Setenv("PORTEXEC_EMPTY", "")
	cases := map[string]string{
		"${PORTEXEC_SET}":             "value",
		"$PORTEXEC_SET/bin":           "value/bin",
		"${PORTEXEC_EMPTY:-fallback}": "fallback",
		"${PORTEXEC_UNSET:-a/b}":      "a/b",
		"${PORTEXEC_UNSET}":           "",
	}
	for in, want := range cases {
		if got := expandEnvWithDefault(in); got != want {
			t.Errorf("expandEnvWithDefault(%q) = %q want %q", in, got, want)
		}
	}
}
