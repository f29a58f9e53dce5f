package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/ion-go/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagProject    string
	flagAPIURL     string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// CLIFlags is the parsed form of the global persistent flags.
type CLIFlags struct {
	JSON    bool
	Verbose bool
	Quiet   bool
}

// CLIContext carries the resolved configuration, logger and output streams
// to every subcommand. PersistentPreRunE builds it and stores it in the
// command's context.
type CLIContext struct {
	Cfg    *config.Resolved
	Flags  CLIFlags
	Logger *slog.Logger
	// Level backs Logger so serve can change verbosity on config reload.
	Level *slog.LevelVar
	Out   io.Writer
	Err   io.Writer
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext installed by the root pre-run. A
// missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cc == nil {
		panic("BUG: CLIContext missing from command context")
	}

	return cc
}

// skipConfigCommands lists commands that must run without a valid config
// file, keyed by CommandPath(). config init writes the file that would
// otherwise fail to load.
var skipConfigCommands = map[string]bool{
	"ion-go config init": true,
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ion-go",
		Short:   "ion asset hosting client",
		Long:    "Sign in to ion, inspect assets and tokens, and serve live session state.",
		Version: version,
		// Silence Cobra's default error/usage printing; main reports errors.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc, err := newCLIContext(cmd)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cc))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagProject, "project", "", "project name used to name the asset access token")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "ion REST API base URL")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newAssetsCmd())
	cmd.AddCommand(newAssetCmd())
	cmd.AddCommand(newTokensCmd())
	cmd.AddCommand(newAssetTokenCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReloadCmd())

	return cmd
}

// newCLIContext resolves configuration through the four-layer chain and
// builds the logger for cmd.
func newCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	flags := CLIFlags{JSON: flagJSON, Verbose: flagVerbose, Quiet: flagQuiet}

	cc := &CLIContext{
		Flags: flags,
		Out:   cmd.OutOrStdout(),
		Err:   cmd.ErrOrStderr(),
	}

	if skipConfigCommands[cmd.CommandPath()] {
		cc.Logger, cc.Level = buildLogger(config.DefaultConfig(), flags, cc.Err)
		return cc, nil
	}

	resolved, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	cc.Cfg = resolved
	cc.Logger, cc.Level = buildLogger(resolved.Config, flags, cc.Err)

	cc.Logger.Debug("config resolved",
		slog.String("path", resolved.Path),
		slog.String("project", resolved.Ion.ProjectName),
		slog.String("api_url", resolved.Ion.APIURL),
	)

	return cc, nil
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set override lower layers.
func loadConfig(cmd *cobra.Command) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("project") {
		cli.ProjectName = flagProject
	}

	if cmd.Flags().Changed("api-url") {
		cli.APIURL = flagAPIURL
	}

	if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
		cli.ListenAddr = f.Value.String()
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// logLevel maps the config log level to slog, with --verbose and --quiet
// overriding it because CLI flags always win.
func logLevel(name string, flags CLIFlags) slog.Level {
	level := slog.LevelInfo

	switch name {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	return level
}

// buildLogger creates the process logger writing to w. The returned
// LevelVar controls its level.
func buildLogger(cfg *config.Config, flags CLIFlags, w io.Writer) (*slog.Logger, *slog.LevelVar) {
	lv := new(slog.LevelVar)
	lv.Set(logLevel(cfg.Logging.LogLevel, flags))

	opts := &slog.HandlerOptions{Level: lv}

	if jsonLogs(cfg.Logging.LogFormat, w) {
		return slog.New(slog.NewJSONHandler(w, opts)), lv
	}

	return slog.New(slog.NewTextHandler(w, opts)), lv
}

// jsonLogs reports whether logs go out as JSON. "auto" picks text for a
// terminal and JSON for anything else.
func jsonLogs(format string, w io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	default:
		return !isTerminal(w)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
