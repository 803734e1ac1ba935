package config

import (
	"fmt"
	"time"

	units "github.com/docker/go-units"
	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// ByteSize is a size in bytes written either as an integer or with a binary
// unit suffix such as "512k" or "4MiB".
type ByteSize int64

// ParseByteSize parses a human readable size.
func ParseByteSize(s string) (ByteSize, error) {
	n, err := units.RAMInBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid size %q: must not be negative", s)
	}
	return ByteSize(n), nil
}

// UnmarshalYAML accepts integer and suffixed scalars.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: size must be a scalar", value.Line)
	}
	if value.Value == "" {
		*b = 0
		return nil
	}
	parsed, err := ParseByteSize(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*b = parsed
	return nil
}

// String renders the size with binary units.
func (b ByteSize) String() string {
	return units.BytesSize(float64(b))
}

// File mirrors the portexec.yaml document structure.
type File struct {
	Includes    []string          `yaml:"includes"`
	Version     string            `yaml:"version"`
	Workdir     string            `yaml:"workdir"`
	Env         map[string]string `yaml:"env"`
	EnvFromFile string            `yaml:"envFromFile"`
	ExtendEnv   *bool             `yaml:"extendEnv"`
	Timeout     Duration          `yaml:"timeout"`
	MaxBuffer   ByteSize          `yaml:"maxBuffer"`
	Logging     LoggingSpec       `yaml:"logging"`
	Metrics     MetricsSpec       `yaml:"metrics"`

	// Path is the absolute path the document was loaded from. Empty for the
	// built-in defaults.
	Path string `yaml:"-"`
}

// LoggingSpec configures the structured logger.
type LoggingSpec struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// MetricsSpec configures metrics export.
type MetricsSpec struct {
	// Textfile receives the metrics registry in the Prometheus text format
	// when a command completes.
	Textfile string `yaml:"textfile"`
}

const (
	defaultVersion   = "1"
	defaultLogFormat = "text"
	defaultLogLevel  = "info"
)

// Default returns the configuration used when no file is present.
func Default() *File {
	f := &File{}
	f.ApplyDefaults()
	return f
}

// ApplyDefaults fills unset fields.
func (f *File) ApplyDefaults() {
	if f.Version == "" {
		f.Version = defaultVersion
	}
	if f.Logging.Format == "" {
		f.Logging.Format = defaultLogFormat
	}
	if f.Logging.Level == "" {
		f.Logging.Level = defaultLogLevel
	}
	if f.ExtendEnv == nil {
		extend := true
		f.ExtendEnv = &extend
	}
}

// ExtendsEnv reports whether Env is layered over the ambient environment.
func (f *File) ExtendsEnv() bool {
	return f.ExtendEnv == nil || *f.ExtendEnv
}
