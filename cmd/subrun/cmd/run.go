package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jrepp/prism-subprocess/pkg/job"
	"github.com/jrepp/prism-subprocess/pkg/shellutil"
)

var runFlags struct {
	stdin           string
	stdout          string
	stderr          string
	input           string
	cwd             string
	env             []string
	cleanEnv        bool
	timeout         time.Duration
	check           bool
	newProcessGroup bool
	commandLine     string
	quiet           bool
}

var runCmd = &cobra.Command{
	Use:   "run [flags] -- COMMAND [ARGS...]",
	Short: "Run a command",
	Long: `Run a command and wait for it.

Streams are redirected with --stdin, --stdout and --stderr, each taking one of
inherit, pipe, close, stdout (stderr only), stderr (stdout only) or
file:PATH. Piped output is collected and printed once the command exits.

The exit code of subrun is the exit code of the command, 128+N when it was
killed by signal N, and 124 when it timed out.`,
	Example: `  subrun run --stdout pipe -- ls -l
  subrun run --stderr stdout --timeout 30s -- make test
  subrun run --input "hello" --stdout file:out.txt -- cat
  subrun run --cmd "echo 'quoted arg'"`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&runFlags.stdin, "stdin", "inherit", "stdin redirect")
	f.StringVar(&runFlags.stdout, "stdout", "inherit", "stdout redirect")
	f.StringVar(&runFlags.stderr, "stderr", "inherit", "stderr redirect")
	f.StringVar(&runFlags.input, "input", "", "feed this string to stdin")
	f.StringVar(&runFlags.cwd, "cwd", "", "working directory")
	f.StringArrayVar(&runFlags.env, "env", nil, "set an environment variable (KEY=VALUE, repeatable)")
	f.BoolVar(&runFlags.cleanEnv, "clean-env", false, "start from an empty environment")
	f.DurationVar(&runFlags.timeout, "timeout", 0, "terminate the command after this long (default from config)")
	f.BoolVar(&runFlags.check, "check", false, "fail on a non-zero exit")
	f.BoolVar(&runFlags.newProcessGroup, "new-process-group", false, "start the command in its own process group")
	f.StringVar(&runFlags.commandLine, "cmd", "", "command as one shell-quoted string")
	f.BoolVarP(&runFlags.quiet, "quiet", "q", false, "do not print a summary")
}

func runRun(cmd *cobra.Command, args []string) error {
	m, err := manifestFromFlags(args)
	if err != nil {
		return err
	}
	return executeJob(cmd.OutOrStdout(), cmd.ErrOrStderr(), m, runFlags.quiet)
}

// manifestFromFlags describes the run command line as a job
func manifestFromFlags(args []string) (*job.Manifest, error) {
	command := args
	if runFlags.commandLine != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("--cmd cannot be combined with positional arguments")
		}
		split, err := shellutil.SplitCommand(runFlags.commandLine)
		if err != nil {
			return nil, fmt.Errorf("parse --cmd: %w", err)
		}
		command = split
	}

	m := &job.Manifest{
		Name:            jobName(command),
		Command:         command,
		Cwd:             runFlags.cwd,
		Timeout:         runFlags.timeout,
		Check:           runFlags.check,
		NewProcessGroup: runFlags.newProcessGroup,
		Stdin:           job.ParseStream(runFlags.stdin),
		Stdout:          job.ParseStream(runFlags.stdout),
		Stderr:          job.ParseStream(runFlags.stderr),
	}
	if runFlags.input != "" {
		m.Stdin = job.Stream{Kind: job.KindData, Data: runFlags.input}
	}

	m.CleanEnv = runFlags.cleanEnv
	if len(runFlags.env) > 0 {
		base := shellutil.Environ()
		if runFlags.cleanEnv {
			base = nil
		}
		env, err := parseEnv(base, runFlags.env)
		if err != nil {
			return nil, err
		}
		m.Environment = env
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
