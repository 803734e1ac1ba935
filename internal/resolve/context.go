package resolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"github.com/Paintersrp/portexec/internal/env"
)

// Platform selects the family whose resolution rules apply.
type Platform int

const (
	// PlatformHost follows the rules of the running operating system.
	PlatformHost Platform = iota
	// PlatformPosix applies POSIX rules: ':' delimited PATH, execute bits.
	PlatformPosix
	// PlatformWindows applies Windows rules: ';' delimited PATH, PATHEXT,
	// backslash separators and command-interpreter wrapping for scripts.
	PlatformWindows
)

// String returns the platform family name.
func (p Platform) String() string {
	switch p.normalize() {
	case PlatformWindows:
		return "windows"
	default:
		return "posix"
	}
}

func (p Platform) normalize() Platform {
	if p != PlatformHost {
		return p
	}
	if runtime.GOOS == "windows" {
		return PlatformWindows
	}
	return PlatformPosix
}

// IsWindows reports whether p is the Windows family.
func (p Platform) IsWindows() bool {
	return p.normalize() == PlatformWindows
}

// ListSeparator returns the PATH list delimiter for the family.
func (p Platform) ListSeparator() string {
	if p.IsWindows() {
		return ";"
	}
	return ":"
}

// FS is the filesystem probe used for existence and permission checks.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
}

type osFS struct{}

func (osFS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// OSFS probes the host filesystem.
var OSFS FS = osFS{}

// ErrInvalidOptions reports conflicting caller options.
var ErrInvalidOptions = errors.New("invalid options")

// Options configures context construction. All fields are optional.
type Options struct {
	// Dir overrides the working directory. Relative values are made
	// absolute against the process working directory.
	Dir string

	// Env replaces the environment with a flat key/value map. Mutually
	// exclusive with EnvVars.
	Env map[string]string

	// EnvVars supplies a pre-built ordered mapping. It is cloned, never
	// retained. Mutually exclusive with Env.
	EnvVars *env.Env

	// ExtendEnv merges Env over the ambient environment instead of
	// replacing it.
	ExtendEnv bool

	// Platform selects the rule family. Defaults to the host.
	Platform Platform

	// FS overrides the filesystem probe. Defaults to OSFS.
	FS FS
}

// Context is the immutable input to resolution and fixup. It is built per
// call and never shared.
type Context struct {
	Dir      string
	Env      *env.Env
	PathExt  []string
	Platform Platform
	FS       FS
}

// BuildContext assembles a Context from opts.
func BuildContext(opts Options) (*Context, error) {
	if opts.Env != nil && opts.EnvVars != nil {
		return nil, fmt.Errorf("%w: Env and EnvVars are mutually exclusive", ErrInvalidOptions)
	}

	platform := opts.Platform.normalize()
	fold := platform == PlatformWindows

	dir := opts.Dir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}
	if !isAbs(dir, platform) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve working directory %q: %w", dir, err)
		}
		dir = abs
	}

	var vars *env.Env
	switch {
	case opts.EnvVars != nil:
		vars = opts.EnvVars.Clone()
	case opts.Env != nil && opts.ExtendEnv:
		vars = env.FromOS(fold)
		vars.Merge(opts.Env)
	case opts.Env != nil:
		vars = env.FromMap(opts.Env, fold)
	default:
		vars = env.FromOS(fold)
	}

	var pathExt []string
	if platform == PlatformWindows {
		pathExt = ParsePathExt(vars.Get("PATHEXT"))
	}

	probe := opts.FS
	if probe == nil {
		probe = OSFS
	}

	return &Context{
		Dir:      dir,
		Env:      vars,
		PathExt:  pathExt,
		Platform: platform,
		FS:       probe,
	}, nil
}

var extensionPattern = regexp.MustCompile(`^\.[a-z0-9.]*[a-z0-9]$`)

// ParsePathExt splits a PATHEXT value into lowercase dotted extensions,
// dropping malformed tokens and duplicates while keeping first-seen order.
func ParsePathExt(value string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, token := range strings.Split(value, ";") {
		ext := strings.TrimSpace(strings.ToLower(token))
		if !extensionPattern.MatchString(ext) {
			continue
		}
		if _, dup := seen[ext]; dup {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	return out
}

// isAbs treats drive and UNC paths as absolute for the Windows family even
// when running elsewhere.
func isAbs(path string, platform Platform) bool {
	if filepath.IsAbs(path) {
		return true
	}
	if platform != PlatformWindows {
		return false
	}
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	return len(path) >= 3 && path[1] == ':' && (path[2] == '\\' || path[2] == '/')
}
