package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// resolveIncludes reads path and every document it includes. Included
// documents are merged in list order and the including document wins.
func resolveIncludes(path string) (map[string]any, error) {
	return includeChain{}.resolve(path, nil)
}

type includeChain struct{}

func (c includeChain) resolve(path string, stack []string) (map[string]any, error) {
	for i, seen := range stack {
		if seen == path {
			cycle := append(append([]string{}, stack[i:]...), path)
			return nil, fmt.Errorf("detected include cycle: %s", strings.Join(cycle, " -> "))
		}
	}
	stack = append(stack, path)

	doc, err := readDocument(path, len(stack) == 1)
	if err != nil {
		return nil, err
	}
	includes, err := extractIncludes(path, doc)
	if err != nil {
		return nil, err
	}
	delete(doc, "includes")

	merged := make(map[string]any)
	for _, ref := range includes {
		if strings.TrimSpace(ref) == "" {
			return nil, fmt.Errorf("%s: include path is empty", path)
		}
		child := ref
		if !filepath.IsAbs(child) {
			child = filepath.Join(filepath.Dir(path), child)
		}
		child = filepath.Clean(child)
		childDoc, err := c.resolve(child, stack)
		if err != nil {
			return nil, fmt.Errorf("%s: include %q: %w", path, ref, err)
		}
		merged = mergeYAMLMaps(merged, childDoc)
	}
	return mergeYAMLMaps(merged, doc), nil
}

func readDocument(path string, root bool) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if root {
			return nil, fmt.Errorf("open config file: %w", err)
		}
		return nil, fmt.Errorf("open include file: %w", err)
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", path, err)
	}
	if raw == nil {
		raw = make(map[string]any)
	}
	return raw, nil
}

func extractIncludes(path string, raw map[string]any) ([]string, error) {
	value, ok := raw["includes"]
	if !ok || value == nil {
		return nil, nil
	}
	list, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%s: includes must be a list of strings", path)
	}
	includes := make([]string, 0, len(list))
	for i, entry := range list {
		s, ok := entry.(string)
		if !ok {
			return nil, fmt.Errorf("%s: includes[%d] must be a string", path, i)
		}
		includes = append(includes, expandEnvWithDefault(s))
	}
	return includes, nil
}

// mergeYAMLMaps merges src into dst. Nested maps merge key by key; any other
// value in src replaces the one in dst.
func mergeYAMLMaps(dst, src map[string]any) map[string]any {
	if dst == nil {
		dst = make(map[string]any, len(src))
	}
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if srcMap, ok := src[key].(map[string]any); ok {
			dstMap, _ := dst[key].(map[string]any)
			dst[key] = mergeYAMLMaps(dstMap, srcMap)
			continue
		}
		dst[key] = src[key]
	}
	return dst
}

func expandYAMLValues(doc map[string]any) {
	for key, value := range doc {
		doc[key] = expandValue(value)
	}
}

func expandValue(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		expandYAMLValues(typed)
		return typed
	case []any:
		for i, elem := range typed {
			typed[i] = expandValue(elem)
		}
		return typed
	case string:
		return expandEnvWithDefault(typed)
	default:
		return value
	}
}
