// Package cmd provides the CLI commands for subrun
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-subprocess/cmd/subrun/internal/config"
	"github.com/jrepp/prism-subprocess/cmd/subrun/internal/tracing"
	"github.com/jrepp/prism-subprocess/cmd/subrun/internal/ui"
)

var (
	cfg        *config.Config
	logger     *slog.Logger
	uiInstance *ui.UI
	configFile string

	// shutdownTracing flushes spans; set when tracing is enabled
	shutdownTracing func(context.Context) error
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "subrun",
	Short: "subrun - Run child processes with redirected streams",
	Long: `subrun starts child processes with explicit control over stdin, stdout
and stderr, optional timeouts and return code checks.

Runs can be described on the command line or in YAML job files. Outcomes are
recorded in a local history database and can be exported as Prometheus
metrics in textfile format.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize UI
		uiInstance = ui.NewUI(cmd.OutOrStdout(), cmd.ErrOrStderr())

		v := config.New()
		if err := v.BindPFlag("log.level", cmd.Root().PersistentFlags().Lookup("log-level")); err != nil {
			return err
		}
		if err := v.BindPFlag("log.format", cmd.Root().PersistentFlags().Lookup("log-format")); err != nil {
			return err
		}
		if err := v.BindPFlag("trace.enabled", cmd.Root().PersistentFlags().Lookup("trace")); err != nil {
			return err
		}

		// Load configuration
		var err error
		cfg, err = config.Load(v, configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger, err = cfg.Log.Logger(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		slog.SetDefault(logger)

		if cfg.Trace.Enabled {
			return setupTracing(cmd.ErrOrStderr(), cmd.Root().Version)
		}
		return nil
	},
}

// exitError carries a process exit code out of a command
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error {
	return e.err
}

// Execute runs the root command and exits with the child's exit code when a
// command ran one
func Execute() {
	err := rootCmd.Execute()
	if shutdownTracing != nil {
		if shutdownErr := shutdownTracing(context.Background()); shutdownErr != nil {
			fmt.Fprintln(os.Stderr, "Error:", shutdownErr)
		}
	}
	if err == nil {
		return
	}

	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil && uiInstance != nil {
			uiInstance.Error(exit.err.Error())
		}
		os.Exit(exit.code)
	}

	fmt.Fprintln(os.Stderr, "Error:", err)
	os.Exit(1)
}

func setupTracing(stderr io.Writer, version string) error {
	w := stderr
	var output *os.File
	if cfg.Trace.Output != "" {
		f, err := os.OpenFile(cfg.Trace.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open trace output: %w", err)
		}
		w, output = f, f
	}

	shutdown, err := tracing.Setup(context.Background(), w, "subrun", version)
	if err != nil {
		if output != nil {
			_ = output.Close()
		}
		return err
	}
	shutdownTracing = func(ctx context.Context) error {
		err := shutdown(ctx)
		if output != nil {
			_ = output.Close()
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.Version = "0.1.0"
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default $HOME/.subrun/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text or json)")
	rootCmd.PersistentFlags().Bool("trace", false, "write OpenTelemetry spans to stderr (or trace.output)")
}
