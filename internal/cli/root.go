package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/portexec/internal/config"
	"github.com/Paintersrp/portexec/internal/logging"
	"github.com/Paintersrp/portexec/internal/metrics"
	"github.com/Paintersrp/portexec/internal/proctree"
	"github.com/Paintersrp/portexec/internal/spawn"
)

func newRootCommand() (*cobra.Command, *context) {
	ctx := &context{}

	root := &cobra.Command{
		Use:   "portexec",
		Short: "Resolve, launch and inspect processes the same way on every platform",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ctx.configPath, "config", "", "Path to configuration file (default ./"+config.DefaultPath+" when present)")
	flags.StringVar(&ctx.cwd, "cwd", "", "Working directory for resolution and spawned processes")
	flags.StringArrayVar(&ctx.envPairs, "env", nil, "Set an environment variable for spawned processes (KEY=VALUE, repeatable)")
	flags.StringVar(&ctx.logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&ctx.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.BoolVarP(&ctx.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&ctx.metricsTextfile, "metrics-textfile", "", "Write metrics in the Prometheus text format to this file on exit")

	root.AddCommand(newWhichCmd(ctx))
	root.AddCommand(newRunCmd(ctx))
	root.AddCommand(newSpawnCmd(ctx))
	root.AddCommand(newPsCmd(ctx))
	root.AddCommand(newTreeCmd(ctx))
	root.AddCommand(newConfigCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true

	return root, ctx
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx stdcontext.Context, args []string, stdout, stderr io.Writer) int {
	root, cctx := newRootCommand()
	return execute(ctx, root, cctx, args, stdout, stderr)
}

// execute runs root and maps its outcome to a process exit code.
func execute(ctx stdcontext.Context, root *cobra.Command, cctx *context, args []string, stdout, stderr io.Writer) int {
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if flushErr := cctx.flushMetrics(); flushErr != nil {
		fmt.Fprintln(stderr, flushErr)
		if err == nil {
			return 1
		}
	}
	if err == nil {
		return 0
	}
	var exit *exitError
	if errors.As(err, &exit) {
		return exit.code
	}
	fmt.Fprintln(stderr, err)
	return 1
}

// exitError ends the process with code after the command already reported
// the outcome.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

type context struct {
	configPath      string
	cwd             string
	envPairs        []string
	logFormat       string
	logLevel        string
	verbose         bool
	metricsTextfile string

	cfg    *config.File
	logger *slog.Logger

	// listCommand overrides the platform listing tool.
	listCommand *proctree.Command
}

// load reads the configuration and layers environment variables and flags
// over it, in that order.
func (c *context) load(cmd *cobra.Command) error {
	dir := c.cwd
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		dir = wd
	}
	cfg, err := config.Discover(c.configPath, dir)
	if err != nil {
		return err
	}
	cfg.ApplyEnvOverrides()

	flags := cmd.Flags()
	if flags.Changed("log-format") {
		cfg.Logging.Format = c.logFormat
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if flags.Changed("metrics-textfile") {
		cfg.Metrics.Textfile = c.metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	if w := cmd.ErrOrStderr(); w == os.Stderr {
		c.logger = logging.New(cfg.Logging.Format, cfg.Logging.Level, c.verbose)
	} else {
		level := cfg.Logging.Level
		if c.verbose {
			level = "debug"
		}
		c.logger = logging.NewWithWriter(w, cfg.Logging.Format, level)
	}
	if cfg.Path != "" {
		c.logger.Debug("loaded configuration", "path", cfg.Path)
	}
	return nil
}

func (c *context) config() *config.File {
	if c.cfg == nil {
		return config.Default()
	}
	return c.cfg
}

func (c *context) log() *slog.Logger {
	return logging.OrDiscard(c.logger)
}

// spawnOptions builds the options shared by every command that resolves or
// launches a program.
func (c *context) spawnOptions() (spawn.Options, error) {
	cfg := c.config()
	opts := spawn.Options{
		Dir:       cfg.Workdir,
		ExtendEnv: cfg.ExtendsEnv(),
		Timeout:   cfg.Timeout.Duration,
		MaxBuffer: int64(cfg.MaxBuffer),
		Logger:    c.log(),
	}
	if c.cwd != "" {
		opts.Dir = c.cwd
	}

	vars, err := parseEnvPairs(c.envPairs)
	if err != nil {
		return spawn.Options{}, err
	}
	if len(cfg.Env) > 0 || len(vars) > 0 {
		opts.Env = make(map[string]string, len(cfg.Env)+len(vars))
		for k, v := range cfg.Env {
			opts.Env[k] = v
		}
		for k, v := range vars {
			opts.Env[k] = v
		}
	}
	return opts, nil
}

func (c *context) lister() (*proctree.Lister, error) {
	opts, err := c.spawnOptions()
	if err != nil {
		return nil, err
	}
	opts.Timeout = 0
	opts.MaxBuffer = 0
	return &proctree.Lister{Command: c.listCommand, Spawn: opts, Logger: c.log()}, nil
}

func (c *context) flushMetrics() error {
	path := c.config().Metrics.Textfile
	if c.cfg == nil && c.metricsTextfile != "" {
		path = c.metricsTextfile
	}
	if path == "" {
		return nil
	}
	if err := metrics.WriteTextfile(path); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	vars := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q: expected KEY=VALUE", pair)
		}
		vars[key] = value
	}
	return vars, nil
}
