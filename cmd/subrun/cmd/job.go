package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-subprocess/pkg/job"
)

var (
	jobQuiet bool
	jobWatch bool
)

var jobCmd = &cobra.Command{
	Use:   "job FILE",
	Short: "Run a command described by a YAML job file",
	Long: `Run the command described by a YAML job file.

Example job file:

  name: nightly-report
  command: ./report --format csv
  cwd: reports
  timeout: 10m
  check: true
  stdin:
    data: "2024-01-01"
  stdout:
    file: out/report.csv
  stderr: stdout

Relative paths resolve against the directory of the job file.

With --watch the job runs again every time the file is saved, until
interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	jobCmd.Flags().BoolVarP(&jobQuiet, "quiet", "q", false, "do not print a summary")
	jobCmd.Flags().BoolVarP(&jobWatch, "watch", "w", false, "run again whenever the job file changes")
}

func runJob(cmd *cobra.Command, args []string) error {
	m, err := job.Load(args[0])
	if err != nil {
		return err
	}
	logger.Debug("loaded job", "name", m.Name, "manifest", m.ManifestPath())

	err = executeJob(cmd.OutOrStdout(), cmd.ErrOrStderr(), m, jobQuiet)
	if !jobWatch {
		return err
	}
	reportWatchedRun(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	uiInstance.Info(fmt.Sprintf("Watching %s (Ctrl-C to stop)", m.ManifestPath()))
	return job.Watch(ctx, m.ManifestPath(), job.DefaultDebounce, func(m *job.Manifest, err error) {
		if err != nil {
			uiInstance.Error(fmt.Sprintf("Reload failed: %v", err))
			return
		}
		uiInstance.Info(fmt.Sprintf("Job file changed, running %s", m.Name))
		reportWatchedRun(executeJob(cmd.OutOrStdout(), cmd.ErrOrStderr(), m, jobQuiet))
	})
}

// reportWatchedRun prints a failed run without ending the watch
func reportWatchedRun(err error) {
	var exit *exitError
	if errors.As(err, &exit) && exit.err == nil {
		return
	}
	if err != nil {
		uiInstance.Error(err.Error())
	}
}
