// Package resolve locates executables the way a shell does: PATH search for
// bare names, working-directory relative lookup for qualified names, and
// PATHEXT suffixes on the Windows family.
//
// A miss is a normal outcome reported through the boolean result. Probe
// failures during the search never abort it; the candidate is skipped.
package resolve

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ResolveFile builds a context from opts and resolves name against it.
func ResolveFile(name string, opts Options) (string, bool, error) {
	ctx, err := BuildContext(opts)
	if err != nil {
		return "", false, err
	}
	path, ok := Resolve(name, ctx)
	return path, ok, nil
}

// Resolve returns the absolute path of the file a shell would execute for
// name.
func Resolve(name string, ctx *Context) (string, bool) {
	if name == "" {
		return "", false
	}
	if IsQualified(name, ctx.Platform) {
		return TryResolveFileExtension(absJoin(ctx, name), ctx)
	}
	for _, dir := range SearchDirs(ctx) {
		if path, ok := TryResolveFileExtension(filepath.Join(dir, name), ctx); ok {
			return path, true
		}
	}
	return "", false
}

// IsQualified reports whether name carries a path separator and must not be
// searched for on PATH.
func IsQualified(name string, platform Platform) bool {
	if strings.Contains(name, "/") {
		return true
	}
	return platform.IsWindows() && strings.Contains(name, `\`)
}

// SearchDirs returns the PATH directories that will be visited, in order.
// Entries are trimmed, empty entries skipped, and an entry is dropped when
// either its literal text or its working-directory resolved form was already
// seen. Relative entries are resolved against ctx.Dir, as historical shells
// do. Only existing directories are returned.
func SearchDirs(ctx *Context) []string {
	raw := ctx.Env.Get("PATH")
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var dirs []string
	for _, segment := range strings.Split(raw, ctx.Platform.ListSeparator()) {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		resolved := absJoin(ctx, segment)
		_, literalSeen := seen[segment]
		_, resolvedSeen := seen[resolved]
		if literalSeen || resolvedSeen {
			continue
		}
		seen[segment] = struct{}{}
		seen[resolved] = struct{}{}

		info, err := ctx.FS.Stat(resolved)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, resolved)
	}
	return dirs
}

// TryResolveFileExtension tries path as given, then path with each platform
// executable extension appended, returning the first executable candidate.
func TryResolveFileExtension(path string, ctx *Context) (string, bool) {
	if IsExecutable(path, ctx) {
		return path, true
	}
	for _, ext := range ctx.PathExt {
		candidate := path + ext
		if IsExecutable(candidate, ctx) {
			return candidate, true
		}
	}
	return "", false
}

// IsExecutable reports whether path names an existing file the platform
// would run. The Windows family accepts any file with an extension; POSIX
// requires at least one execute permission bit. Errors from the probe mean
// "not executable".
func IsExecutable(path string, ctx *Context) bool {
	info, err := ctx.FS.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if ctx.Platform.IsWindows() {
		return extension(path) != ""
	}
	return info.Mode().Perm()&0o111 != 0
}

// extension returns the suffix of the last path element starting at its final
// dot, considering both separators on every platform so Windows paths can be
// examined anywhere. A leading dot alone (".profile") is not an extension.
func extension(path string) string {
	base := path
	if i := strings.LastIndexAny(base, `/\`); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		return base[i:]
	}
	return ""
}

// Extension exposes the suffix rule used by the Windows-family predicate.
func Extension(path string) string {
	return extension(path)
}

func absJoin(ctx *Context, path string) string {
	if isAbs(path, ctx.Platform) {
		return filepath.Clean(path)
	}
	return filepath.Join(ctx.Dir, path)
}

// String renders the context for debug logging.
func (c *Context) String() string {
	return fmt.Sprintf("platform=%s dir=%s pathext=%s", c.Platform, c.Dir, strings.Join(c.PathExt, ";"))
}
