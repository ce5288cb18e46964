package subprocess

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jrepp/prism-subprocess/pkg/shellutil"
)

// spawnState names the steps of one spawn in debug logs.
type spawnState string

const (
	spawnResolvingRedirects spawnState = "resolving_redirects"
	spawnApplyingActions    spawnState = "applying_platform_actions"
	spawnLaunching          spawnState = "launching"
	spawnLaunched           spawnState = "launched"
	spawnFailed             spawnState = "failed"
)

// Popen starts command as a child process and returns its handle without
// waiting. command[0] is looked up with shellutil.FindProgram. The caller
// must Close the returned Process.
func Popen(command []string, opts ...Option) (*Process, error) {
	o := newRunOptions(opts...)
	return spawn(command, o)
}

func spawn(command []string, o *RunOptions) (*Process, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, ErrInvalidArgument("command", command, "command must not be empty")
	}
	program := filepath.Base(command[0])
	logger := o.Logger.With("program", program)

	redirects := [3]Redirect{o.Stdin, o.Stdout, o.Stderr}
	if err := validateRedirects(redirects); err != nil {
		o.Metrics.SpawnFailed(program, GetErrorCode(err))
		return nil, err
	}

	fail := func(r *resolver, err error) (*Process, error) {
		if r != nil {
			r.unwind()
		}
		logger.Debug("spawn state", "state", spawnFailed, "error", err)
		o.Metrics.SpawnFailed(program, GetErrorCode(err))
		return nil, err
	}

	unlock := shellutil.LockSpawn()
	defer unlock()

	path := shellutil.FindProgram(programPath(command[0], o.Cwd))
	if path == "" {
		return fail(nil, ErrCommandNotFound(command[0]))
	}

	logger.Debug("spawn state", "state", spawnResolvingRedirects)
	r := newResolver()
	if err := r.resolveAll(redirects); err != nil {
		return fail(r, err)
	}

	logger.Debug("spawn state", "state", spawnApplyingActions)
	env := os.Environ()
	if o.ClearEnv || len(o.Env) > 0 {
		env = shellutil.EnvBlock(o.Env)
	}
	attr := &syscall.ProcAttr{
		Dir:   o.Cwd,
		Env:   env,
		Files: fileTable(r.files),
		Sys:   sysProcAttr(o),
	}

	logger.Debug("spawn state", "state", spawnLaunching, "path", path, "cwd", o.Cwd)
	started := time.Now()
	pid, handle, err := syscall.StartProcess(path, command, attr)
	if err != nil {
		return fail(r, ErrSpawnFailed(path, err).WithContext("args", shellutil.CommandLine(command)))
	}
	spawnDuration := time.Since(started)
	r.commit()

	p := &Process{
		ID:         uuid.New().String(),
		Args:       command,
		Pid:        pid,
		Stdin:      r.parent[streamStdin],
		Stdout:     r.parent[streamStdout],
		Stderr:     r.parent[streamStderr],
		returnCode: ReturnCodeUnknown,
		state:      StateRunning,
		os:         newOSHandle(pid, handle),
		pumps:      &sync.WaitGroup{},
		started:    started,
		program:    program,
		logger:     logger,
		metrics:    o.Metrics,
	}
	p.startPumps(r.pumps)

	o.Metrics.ProcessSpawned(program, spawnDuration)
	p.logger.Debug("spawn state",
		"state", spawnLaunched,
		"process_id", p.ID,
		"pid", pid,
		"duration", spawnDuration)
	return p, nil
}

// programPath anchors a relative path such as ./tool at the child's working
// directory. Bare names are left for the PATH search.
func programPath(name, cwd string) string {
	if cwd == "" || filepath.IsAbs(name) || !strings.ContainsAny(name, pathSeparators) {
		return name
	}
	return filepath.Join(cwd, name)
}
