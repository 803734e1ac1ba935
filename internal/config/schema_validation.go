package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	portexecschema "github.com/Paintersrp/portexec/schema"
)

const schemaResource = "config.v1.json"

var (
	schemaOnce   sync.Once
	configSchema *jsonschema.Schema
	schemaErr    error
)

func loadConfigSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		if err := compiler.AddResource(schemaResource, bytes.NewReader(portexecschema.ConfigV1Schema)); err != nil {
			schemaErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		configSchema, schemaErr = compiler.Compile(schemaResource)
		if schemaErr != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", schemaErr)
		}
	})
	if schemaErr != nil {
		return nil, schemaErr
	}
	return configSchema, nil
}

func validateAgainstSchema(doc map[string]any) error {
	schema, err := loadConfigSchema()
	if err != nil {
		return fmt.Errorf("load config schema: %w", err)
	}

	normalized, err := normalizeForSchema(doc)
	if err != nil {
		return fmt.Errorf("prepare config for schema validation: %w", err)
	}

	if err := schema.Validate(normalized); err != nil {
		var vErr *jsonschema.ValidationError
		if errors.As(err, &vErr) {
			return fmt.Errorf("invalid portexec configuration (schema validation failed):\n%s", formatValidationError(vErr))
		}
		return fmt.Errorf("schema validation failed: %w", err)
	}
	return nil
}

// normalizeForSchema round-trips doc through JSON so the validator sees
// json.Number values and plain maps.
func normalizeForSchema(doc map[string]any) (any, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var out any
	if err := decoder.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// fieldHints describe the accepted form of a field, keyed by the location
// formatInstanceLocation produces.
var fieldHints = map[string]string{
	"config":           "known keys: includes, version, workdir, env, envFromFile, extendEnv, timeout, maxBuffer, logging, metrics",
	"timeout":          "a duration such as 30s or 1m30s",
	"maxBuffer":        "a byte count or a size such as 512k or 4MiB",
	"extendEnv":        "true or false",
	"logging":          "known keys: format, level",
	"logging.format":   "text or json",
	"logging.level":    "debug, info, warn or error",
	"metrics":          "known keys: textfile",
	"includes":         "a list of config file paths",
	"envFromFile":      "a path to a KEY=VALUE file",
	"metrics.textfile": "a file path",
}

func formatValidationError(err *jsonschema.ValidationError) string {
	f := validationFormatter{hinted: make(map[string]bool)}
	f.collect(err, 0)
	return strings.Join(f.lines, "\n")
}

type validationFormatter struct {
	lines  []string
	hinted map[string]bool
}

// collect flattens the cause tree, skipping the wrapper nodes that only say
// a subschema failed. Each location gets its hint once.
func (f *validationFormatter) collect(err *jsonschema.ValidationError, depth int) {
	if len(err.Causes) == 0 || !strings.HasPrefix(err.Message, "doesn't validate with") {
		location := formatInstanceLocation(err.InstanceLocation)
		line := fmt.Sprintf("%s- %s: %s", strings.Repeat("  ", depth), location, err.Message)
		if hint := hintFor(location); hint != "" && !f.hinted[location] {
			f.hinted[location] = true
			line += " (" + hint + ")"
		}
		f.lines = append(f.lines, line)
		depth++
	}
	for _, cause := range err.Causes {
		f.collect(cause, depth)
	}
}

func hintFor(location string) string {
	if strings.HasPrefix(location, "env.") {
		return "environment values must be strings, numbers or booleans"
	}
	if strings.HasPrefix(location, "includes[") {
		return "a non-empty config file path"
	}
	return fieldHints[location]
}

// formatInstanceLocation turns a JSON pointer such as /env/0 into env[0].
func formatInstanceLocation(ptr string) string {
	var b strings.Builder
	for _, segment := range strings.Split(strings.TrimPrefix(ptr, "/"), "/") {
		if segment == "" {
			continue
		}
		decoded := strings.ReplaceAll(strings.ReplaceAll(segment, "~1", "/"), "~0", "~")
		if _, err := strconv.Atoi(decoded); err == nil {
			fmt.Fprintf(&b, "[%s]", decoded)
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(decoded)
	}
	if b.Len() == 0 {
		return "config"
	}
	return b.String()
}
