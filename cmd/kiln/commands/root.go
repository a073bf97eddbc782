// Package commands implements the CLI commands for the kiln task runner.
package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"go.trai.ch/kiln/internal/app"
	"go.trai.ch/kiln/internal/build"
)

// CLI represents the command line interface for kiln.
type CLI struct {
	app     Application
	logger  LoggerConfig
	rootCmd *cobra.Command
}

// Application represents the application logic interface.
type Application interface {
	Run(ctx context.Context, targetNames []string, opts app.RunOptions) error
	Watch(ctx context.Context, targetNames []string, opts app.RunOptions) error
	Graph(ctx context.Context, targetNames []string, filter app.Filter, w io.Writer) error
	Clean(ctx context.Context, opts app.CleanOptions) error
}

// LoggerConfig is implemented by loggers that the global flags can tune.
type LoggerConfig interface {
	SetJSON(enable bool)
	SetLevel(level slog.Level)
}

// Option configures a CLI.
type Option func(*CLI)

// WithLoggerConfig lets the --verbose and --json-logs flags tune cfg.
func WithLoggerConfig(cfg LoggerConfig) Option {
	return func(c *CLI) {
		c.logger = cfg
	}
}

// New creates a new CLI instance with the given app.
func New(a Application, opts ...Option) *CLI {
	rootCmd := &cobra.Command{
		Use:           "kiln",
		Short:         "An incremental task runner",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       build.Version,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"{{.Name}} version {{.Version}} (commit: %s, date: %s)\n",
		build.Commit,
		build.Date,
	))
	rootCmd.InitDefaultVersionFlag()
	rootCmd.Flags().Lookup("version").Usage = "Print the application version"

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Log debug messages")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON lines")

	c := &CLI{
		app:     a,
		rootCmd: rootCmd,
	}
	for _, opt := range opts {
		opt(c)
	}
	rootCmd.PersistentPreRun = c.configureLogger

	rootCmd.AddCommand(c.newRunCmd())
	rootCmd.AddCommand(c.newWatchCmd())
	rootCmd.AddCommand(c.newGraphCmd())
	rootCmd.AddCommand(c.newCleanCmd())
	rootCmd.AddCommand(c.newVersionCmd())

	return c
}

func (c *CLI) configureLogger(cmd *cobra.Command, _ []string) {
	if c.logger == nil {
		return
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json-logs"); jsonLogs {
		c.logger.SetJSON(true)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		c.logger.SetLevel(slog.LevelDebug)
	}
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput sets the output and error streams for the root command. Used for testing.
func (c *CLI) SetOutput(out, err io.Writer) {
	c.rootCmd.SetOut(out)
	c.rootCmd.SetErr(err)
}
