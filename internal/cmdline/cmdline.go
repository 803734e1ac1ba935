// Package cmdline turns a resolved executable and its arguments into the
// command line handed to the OS.
//
// POSIX files are launched directly. On the Windows family, native images
// (.exe, .com) are launched directly while batch scripts (.bat, .cmd) are
// wrapped in the command interpreter. The interpreter re-scans its command
// string for variable expansion and operators, and no escaping survives that
// reliably, so arguments containing those characters are rejected rather than
// escaped.
package cmdline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Paintersrp/portexec/internal/resolve"
)

// CommandLine is the final path and argument vector for process creation.
type CommandLine struct {
	Path string
	Args []string

	// Verbatim marks arguments that are already escaped for the command
	// interpreter and must reach it without OS argv quoting.
	Verbatim bool
}

// InterpreterLine renders a Verbatim command line as the single string the
// OS hands to the interpreter. The command after the interpreter switches is
// enclosed in one pair of quotes, which /s strips again. Inside it the script
// path keeps its escape characters and each original argument is quoted when
// it is empty or holds whitespace or quotes, so it arrives as one parameter.
func (c CommandLine) InterpreterLine() string {
	n := len(interpreterArgs)
	if !c.Verbatim || len(c.Args) <= n {
		parts := make([]string, 0, len(c.Args)+1)
		parts = append(parts, quoteArg(c.Path))
		for _, arg := range c.Args {
			parts = append(parts, quoteArg(arg))
		}
		return strings.Join(parts, " ")
	}

	command := make([]string, 0, len(c.Args)-n)
	command = append(command, c.Args[n])
	for _, arg := range c.Args[n+1:] {
		command = append(command, quoteArg(arg))
	}
	return quoteArg(c.Path) + " " + strings.Join(c.Args[:n], " ") + ` "` + strings.Join(command, " ") + `"`
}

// quoteArg wraps arg in double quotes when the interpreter would otherwise
// split or drop it. Embedded quotes are doubled.
func quoteArg(arg string) string {
	if arg != "" && !strings.ContainsAny(arg, " \t\"") {
		return arg
	}
	return `"` + strings.ReplaceAll(arg, `"`, `""`) + `"`
}

// String renders the command line for diagnostics.
func (c CommandLine) String() string {
	if len(c.Args) == 0 {
		return c.Path
	}
	return c.Path + " " + strings.Join(c.Args, " ")
}

var (
	// ErrUnsafeArgument reports an argument that cannot be delivered through
	// the command interpreter unchanged.
	ErrUnsafeArgument = errors.New("unsafe argument for command interpreter")

	// ErrUnsupportedFileType reports a file the platform cannot launch.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrInterpreterNotFound reports that no command interpreter could be
	// located for a script.
	ErrInterpreterNotFound = errors.New("command interpreter not found")
)

// UnsafeArgumentError identifies the argument and character rejected by
// ValidateArg.
type UnsafeArgumentError struct {
	Arg  string
	Char rune
}

func (e *UnsafeArgumentError) Error() string {
	return fmt.Sprintf("%s: argument %q contains %s", ErrUnsafeArgument.Error(), e.Arg, describeChar(e.Char))
}

// Unwrap allows errors.Is(err, ErrUnsafeArgument).
func (e *UnsafeArgumentError) Unwrap() error {
	return ErrUnsafeArgument
}

func describeChar(r rune) string {
	switch r {
	case '\r':
		return `carriage return (\r)`
	case '\n':
		return `newline (\n)`
	default:
		return fmt.Sprintf("%q", r)
	}
}

const (
	// interpreterEnv names the variable pointing at the command interpreter.
	interpreterEnv = "ComSpec"
	// interpreterName is resolved on PATH when interpreterEnv is unusable.
	interpreterName = "cmd.exe"
	// escapeChar is the interpreter's escape prefix.
	escapeChar = '^'
)

// unsafeArgChars cannot be round-tripped through the interpreter.
const unsafeArgChars = "%^&|<>\r\n"

// escapedPathChars are prefixed with escapeChar in the script path.
const escapedPathChars = "%^&|<> "

// interpreterArgs disable AutoRun, make the interpreter strip only the outer
// quotes of the command, and exit once the command finishes.
var interpreterArgs = []string{"/d", "/s", "/c"}

var (
	directExtensions = map[string]struct{}{".exe": {}, ".com": {}}
	scriptExtensions = map[string]struct{}{".bat": {}, ".cmd": {}}
)

// Fixup returns the command line for launching path with args.
func Fixup(path string, args []string, ctx *resolve.Context) (CommandLine, error) {
	if !ctx.Platform.IsWindows() {
		return CommandLine{Path: path, Args: cloneArgs(args)}, nil
	}

	ext := strings.ToLower(resolve.Extension(path))
	if _, ok := directExtensions[ext]; ok {
		return CommandLine{Path: path, Args: cloneArgs(args)}, nil
	}
	if _, ok := scriptExtensions[ext]; !ok {
		if ext == "" {
			return CommandLine{}, fmt.Errorf("%w: %s has no extension", ErrUnsupportedFileType, path)
		}
		return CommandLine{}, fmt.Errorf("%w: %s (%s)", ErrUnsupportedFileType, path, ext)
	}

	for _, arg := range args {
		if err := ValidateArg(arg); err != nil {
			return CommandLine{}, err
		}
	}

	interpreter, err := findInterpreter(ctx)
	if err != nil {
		return CommandLine{}, err
	}

	wrapped := make([]string, 0, len(interpreterArgs)+len(args)+1)
	wrapped = append(wrapped, interpreterArgs...)
	wrapped = append(wrapped, EscapeScriptPath(path))
	wrapped = append(wrapped, args...)
	return CommandLine{Path: interpreter, Args: wrapped, Verbatim: true}, nil
}

// ValidateArg rejects arguments containing characters the command
// interpreter would reinterpret.
func ValidateArg(arg string) error {
	if i := strings.IndexAny(arg, unsafeArgChars); i >= 0 {
		return &UnsafeArgumentError{Arg: arg, Char: rune(arg[i])}
	}
	return nil
}

// EscapeScriptPath prefixes interpreter metacharacters and spaces with the
// escape character.
func EscapeScriptPath(path string) string {
	var b strings.Builder
	b.Grow(len(path) + 8)
	for _, r := range path {
		if strings.ContainsRune(escapedPathChars, r) {
			b.WriteRune(escapeChar)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func findInterpreter(ctx *resolve.Context) (string, error) {
	if configured := ctx.Env.Get(interpreterEnv); configured != "" && resolve.IsExecutable(configured, ctx) {
		return configured, nil
	}
	if path, ok := resolve.Resolve(interpreterName, ctx); ok {
		return path, nil
	}
	return "", fmt.Errorf("%w: %s is unset or not executable and %s is not on PATH", ErrInterpreterNotFound, interpreterEnv, interpreterName)
}

func cloneArgs(args []string) []string {
	if args == nil {
		return nil
	}
	return append([]string(nil), args...)
}
