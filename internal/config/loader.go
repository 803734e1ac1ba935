package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the file Discover looks for in the working directory.
const DefaultPath = "portexec.yaml"

// Load reads a configuration document from the provided path, merging its
// includes, expanding environment references and validating the result.
func Load(path string) (*File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	raw, err := resolveIncludes(absPath)
	if err != nil {
		return nil, err
	}
	expandYAMLValues(raw)
	if err := validateAgainstSchema(raw); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}

	encoded, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: encode merged document: %w", absPath, err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(encoded))
	decoder.KnownFields(true)
	var doc File
	if err := decoder.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}
	doc.Path = absPath

	configDir := filepath.Dir(absPath)
	if doc.Workdir != "" {
		doc.Workdir = resolveWorkdir(configDir, doc.Workdir)
	}

	var fileEnv map[string]string
	if doc.EnvFromFile != "" {
		base := doc.Workdir
		if base == "" {
			base = configDir
		}
		doc.EnvFromFile = resolveWorkdir(base, doc.EnvFromFile)
		fileEnv, err = loadEnvFile(doc.EnvFromFile)
		if err != nil {
			return nil, fmt.Errorf("%s: envFromFile: %w", absPath, err)
		}
	}
	doc.Env = mergeEnv(fileEnv, doc.Env)

	doc.ApplyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

// Discover loads path when set. Otherwise it loads DefaultPath from dir if
// present and falls back to Default.
func Discover(path, dir string) (*File, error) {
	if path != "" {
		return Load(path)
	}
	candidate := filepath.Join(dir, DefaultPath)
	if _, err := os.Stat(candidate); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("stat %s: %w", candidate, err)
	}
	return Load(candidate)
}

func resolveWorkdir(base, workdir string) string {
	if workdir == "" {
		return base
	}
	if filepath.IsAbs(workdir) {
		return filepath.Clean(workdir)
	}
	return filepath.Clean(filepath.Join(base, workdir))
}

// mergeEnv layers inline values over values read from the env file.
func mergeEnv(fileEnv, inline map[string]string) map[string]string {
	if len(fileEnv) == 0 && len(inline) == 0 {
		return nil
	}
	merged := make(map[string]string, len(fileEnv)+len(inline))
	for k, v := range fileEnv {
		merged[k] = v
	}
	for k, v := range inline {
		merged[k] = v
	}
	return merged
}
