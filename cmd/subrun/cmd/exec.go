package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jrepp/prism-subprocess/cmd/subrun/internal/ui"
	"github.com/jrepp/prism-subprocess/pkg/history"
	"github.com/jrepp/prism-subprocess/pkg/job"
	"github.com/jrepp/prism-subprocess/pkg/shellutil"
	"github.com/jrepp/prism-subprocess/pkg/subprocess"
)

// Conventional exit codes for failures that have no child return code
const (
	exitTimeout      = 124
	exitCannotInvoke = 126
	exitNotFound     = 127
	exitSignalBase   = 128
)

// executeJob runs m with the configured defaults, echoes captured output,
// records the outcome and maps it to an exit code.
func executeJob(stdout, stderr io.Writer, m *job.Manifest, quiet bool) error {
	if m.Timeout == 0 {
		m.Timeout = cfg.Run.Timeout
	}
	if m.KillGrace == 0 {
		m.KillGrace = cfg.Run.KillGrace
	}

	metrics := subprocess.NewPrometheusMetricsCollector(cfg.Metrics.Namespace)
	started := time.Now()

	logger.Info("running job", "name", m.Name, "command", shellutil.CommandLine(m.Command))
	result, err := m.Run(
		subprocess.WithLogger(logger),
		subprocess.WithMetricsCollector(metrics),
	)

	// captured output goes out before anything else is reported
	var expired *subprocess.TimeoutExpired
	switch {
	case result != nil:
		_, _ = stdout.Write(result.Stdout)
		_, _ = stderr.Write(result.Stderr)
	case errors.As(err, &expired):
		_, _ = stdout.Write(expired.Stdout)
		_, _ = stderr.Write(expired.Stderr)
	}

	recordHistory(m, started, result, err)
	writeMetrics(metrics.Registry())

	summary := ui.NewUI(stderr, stderr)
	commandLine := shellutil.CommandLine(m.Command)
	if result != nil && !quiet {
		summary.RunSummary(commandLine, result.ReturnCode, result.Duration.Round(time.Millisecond).String(), result.OK())
	}

	return exitFor(result, err)
}

// exitFor maps a run outcome to an exit code error, or nil for success
func exitFor(result *subprocess.CompletedProcess, err error) error {
	if err != nil {
		switch subprocess.GetErrorCode(err) {
		case subprocess.ErrorCodeTimeoutExpired:
			return &exitError{code: exitTimeout, err: err}
		case subprocess.ErrorCodeCommandNotFound:
			return &exitError{code: exitNotFound, err: err}
		case subprocess.ErrorCodeSpawnFailed:
			return &exitError{code: exitCannotInvoke, err: err}
		case subprocess.ErrorCodeCalledProcessError:
			// checked failures keep the child's code below
		default:
			return &exitError{code: 1, err: err}
		}
	}
	if result == nil || result.ReturnCode == 0 {
		return nil
	}
	code := result.ReturnCode
	if code < 0 {
		code = exitSignalBase - code
	}
	return &exitError{code: code, err: err}
}

func recordHistory(m *job.Manifest, started time.Time, result *subprocess.CompletedProcess, runErr error) {
	if !cfg.History.Enabled {
		return
	}

	store, err := history.Open(cfg.History.Path)
	if err != nil {
		logger.Warn("history unavailable", "path", cfg.History.Path, "error", err)
		return
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry := history.FromResult(m.Name, m.Command, started, result, runErr)
	if _, err := store.Record(ctx, entry); err != nil {
		logger.Warn("failed to record run", "error", err)
		return
	}

	if cfg.History.Retention > 0 {
		deleted, err := store.Prune(ctx, time.Now().Add(-cfg.History.Retention))
		if err != nil {
			logger.Warn("history retention cleanup failed", "error", err)
		} else if deleted > 0 {
			logger.Debug("history retention cleanup", "deleted", deleted)
		}
	}
}

func writeMetrics(registry *prometheus.Registry) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(cfg.Metrics.Textfile, registry); err != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
	}
}

// jobName derives a history name from argv[0]
func jobName(command []string) string {
	if len(command) == 0 {
		return ""
	}
	return filepath.Base(command[0])
}

// parseEnv turns K=V pairs into a map on top of base
func parseEnv(base map[string]string, pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(base)+len(pairs))
	for k, v := range base {
		env[k] = v
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --env %q (want KEY=VALUE)", pair)
		}
		env[k] = v
	}
	return env, nil
}
