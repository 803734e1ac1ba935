package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Paintersrp/portexec/internal/logging"
)

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// Validate checks field values the schema cannot express and values that
// may have been set after loading.
func (f *File) Validate() error {
	var errs []error
	if f.Version != "" && f.Version != defaultVersion {
		errs = append(errs, fmt.Errorf("version: unsupported version %q", f.Version))
	}
	if f.Timeout.Duration < 0 {
		errs = append(errs, fmt.Errorf("timeout: must not be negative"))
	}
	if f.MaxBuffer < 0 {
		errs = append(errs, fmt.Errorf("maxBuffer: must not be negative"))
	}
	if !logging.ValidFormat(f.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: unsupported format %q", f.Logging.Format))
	}
	if level := strings.ToLower(f.Logging.Level); level != "" && !validLevels[level] {
		errs = append(errs, fmt.Errorf("logging.level: unsupported level %q", f.Logging.Level))
	}
	for key := range f.Env {
		if key == "" || strings.ContainsAny(key, "=\x00") {
			errs = append(errs, fmt.Errorf("env: invalid variable name %q", key))
		}
	}
	return errors.Join(errs...)
}
