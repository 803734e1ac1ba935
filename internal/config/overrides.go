package config

import "os"

// Environment variables that override file values.
const (
	EnvLogFormat       = "PORTEXEC_LOG_FORMAT"
	EnvLogLevel        = "PORTEXEC_LOG_LEVEL"
	EnvMetricsTextfile = "PORTEXEC_METRICS_TEXTFILE"
)

// ApplyEnvOverrides replaces file values with the PORTEXEC_* variables that
// are set and non-empty.
func (f *File) ApplyEnvOverrides() {
	f.applyOverrides(os.LookupEnv)
}

func (f *File) applyOverrides(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvLogFormat, &f.Logging.Format)
	set(EnvLogLevel, &f.Logging.Level)
	set(EnvMetricsTextfile, &f.Metrics.Textfile)
}
