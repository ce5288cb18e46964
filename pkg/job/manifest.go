// Package job loads declarative run descriptions from YAML and turns them
// into subprocess options.
package job

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jrepp/prism-subprocess/pkg/pipe"
	"github.com/jrepp/prism-subprocess/pkg/shellutil"
	"github.com/jrepp/prism-subprocess/pkg/subprocess"
)

// Manifest describes one command to run
type Manifest struct {
	// Name identifies the job in logs and history
	Name string `yaml:"name"`

	// Optional: Description of the job
	Description string `yaml:"description"`

	// Command is argv, written as a list or as one shell-like string
	Command Command `yaml:"command"`

	// Working directory (relative to manifest file)
	Cwd string `yaml:"cwd"`

	// Environment replaces the inherited environment when set
	Environment map[string]string `yaml:"environment"`

	// CleanEnv drops the inherited environment even when Environment is empty
	CleanEnv bool `yaml:"clean_env"`

	// Timeout bounds the run; zero waits forever
	Timeout time.Duration `yaml:"timeout"`

	// KillGrace is the delay between terminate and kill after a timeout
	KillGrace time.Duration `yaml:"kill_grace"`

	// Check fails the job on a non-zero exit
	Check bool `yaml:"check"`

	// NewProcessGroup starts the command in its own process group
	NewProcessGroup bool `yaml:"new_process_group"`

	// Standard stream redirects
	Stdin  Stream `yaml:"stdin"`
	Stdout Stream `yaml:"stdout"`
	Stderr Stream `yaml:"stderr"`

	// Internal: Absolute path to manifest file (populated during load)
	manifestPath string `yaml:"-"`
}

// Command is argv. In YAML it is either a sequence or a string split with
// shell quoting rules.
type Command []string

// UnmarshalYAML accepts a sequence or a shell-like string
func (c *Command) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		args, err := shellutil.SplitCommand(value.Value)
		if err != nil {
			return fmt.Errorf("line %d: split command: %w", value.Line, err)
		}
		*c = args
		return nil
	case yaml.SequenceNode:
		var args []string
		if err := value.Decode(&args); err != nil {
			return err
		}
		*c = args
		return nil
	default:
		return fmt.Errorf("line %d: command must be a string or a list", value.Line)
	}
}

// Stream kinds
const (
	KindInherit = "inherit"
	KindPipe    = "pipe"
	KindClose   = "close"
	KindStdout  = "stdout"
	KindStderr  = "stderr"
	KindFile    = "file"
	KindData    = "data"
)

// Stream is one redirect. In YAML it is a scalar kind (inherit, pipe,
// close, stdout, stderr) or a mapping with either file (plus an optional
// mode) or data.
type Stream struct {
	Kind string
	File string
	Mode string
	Data string
}

// UnmarshalYAML accepts a scalar kind or a file/data mapping
func (s *Stream) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		s.Kind = value.Value
		return nil
	case yaml.MappingNode:
		var m struct {
			File *string `yaml:"file"`
			Mode string  `yaml:"mode"`
			Data *string `yaml:"data"`
		}
		if err := value.Decode(&m); err != nil {
			return err
		}
		switch {
		case m.File != nil && m.Data != nil:
			return fmt.Errorf("line %d: stream takes file or data, not both", value.Line)
		case m.File != nil:
			s.Kind, s.File, s.Mode = KindFile, *m.File, m.Mode
		case m.Data != nil:
			s.Kind, s.Data = KindData, *m.Data
		default:
			return fmt.Errorf("line %d: stream mapping needs file or data", value.Line)
		}
		return nil
	default:
		return fmt.Errorf("line %d: stream must be a string or a mapping", value.Line)
	}
}

// ParseStream parses the command-line form of a redirect: a kind such as
// pipe, or file:PATH.
func ParseStream(s string) Stream {
	if path, ok := strings.CutPrefix(s, "file:"); ok {
		return Stream{Kind: KindFile, File: path}
	}
	return Stream{Kind: s}
}

// Load loads a manifest from a YAML file
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	manifest, err := parse(data)
	if err != nil {
		return nil, err
	}

	// Store absolute path to manifest
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}
	manifest.manifestPath = absPath

	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return manifest, nil
}

// Parse parses and validates a manifest. Relative paths resolve against the
// current directory.
func Parse(data []byte) (*Manifest, error) {
	manifest, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("validate manifest: %w", err)
	}
	return manifest, nil
}

func parse(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &manifest, nil
}

// Validate checks if the manifest is valid
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(m.Command) == 0 || m.Command[0] == "" {
		return fmt.Errorf("command is required")
	}
	if m.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got: %s", m.Timeout)
	}
	if m.KillGrace < 0 {
		return fmt.Errorf("kill_grace must not be negative, got: %s", m.KillGrace)
	}

	for _, sv := range []struct {
		name   string
		stream *Stream
	}{
		{"stdin", &m.Stdin},
		{"stdout", &m.Stdout},
		{"stderr", &m.Stderr},
	} {
		if sv.stream.Kind == "" {
			sv.stream.Kind = KindInherit
		}
		if err := validateStream(sv.name, *sv.stream); err != nil {
			return err
		}
	}

	if m.Stdout.Kind == KindStderr && m.Stderr.Kind == KindStdout {
		return fmt.Errorf("stdout and stderr cannot both be redirected to each other")
	}
	return nil
}

func validateStream(name string, s Stream) error {
	switch s.Kind {
	case KindInherit, KindPipe, KindClose, KindFile:
		if s.Kind == KindFile && s.File == "" {
			return fmt.Errorf("%s.file is required", name)
		}
		return nil
	case KindData:
		if name != "stdin" {
			return fmt.Errorf("%s: data can only feed stdin", name)
		}
		return nil
	case KindStdout:
		if name != "stderr" {
			return fmt.Errorf("%s: only stderr can be redirected to stdout", name)
		}
		return nil
	case KindStderr:
		if name != "stdout" {
			return fmt.Errorf("%s: only stdout can be redirected to stderr", name)
		}
		return nil
	default:
		return fmt.Errorf("invalid %s: %s (must be inherit, pipe, close, stdout, stderr, or a file/data mapping)", name, s.Kind)
	}
}

// ManifestPath returns the absolute path to the manifest file
func (m *Manifest) ManifestPath() string {
	return m.manifestPath
}

// resolvePath resolves p relative to the manifest directory
func (m *Manifest) resolvePath(p string) string {
	if p == "" || filepath.IsAbs(p) || m.manifestPath == "" {
		return p
	}
	return filepath.Join(filepath.Dir(m.manifestPath), p)
}

// WorkingDir returns the absolute working directory, or "" to inherit
func (m *Manifest) WorkingDir() string {
	return m.resolvePath(m.Cwd)
}

// Options converts the manifest into subprocess options. Files named by
// stream redirects are opened here; the returned closer releases them and
// must be called once the process has been waited for.
func (m *Manifest) Options() ([]subprocess.Option, func() error, error) {
	var files []*os.File
	closeFiles := func() error {
		var errs []error
		for _, f := range files {
			errs = append(errs, f.Close())
		}
		return errors.Join(errs...)
	}

	redirect := func(s Stream, defaultMode string) (subprocess.Redirect, error) {
		switch s.Kind {
		case KindPipe:
			return subprocess.Pipe, nil
		case KindClose:
			return subprocess.Close, nil
		case KindStdout:
			return subprocess.ToStdout, nil
		case KindStderr:
			return subprocess.ToStderr, nil
		case KindData:
			return subprocess.FromString(s.Data), nil
		case KindFile:
			mode := s.Mode
			if mode == "" {
				mode = defaultMode
			}
			path := m.resolvePath(s.File)
			h, err := pipe.OpenFile(path, mode)
			if err != nil {
				return nil, err
			}
			f := os.NewFile(uintptr(h), path)
			files = append(files, f)
			return subprocess.UseFile(f), nil
		default:
			return subprocess.Inherit, nil
		}
	}

	stdin, err := redirect(m.Stdin, "r")
	if err != nil {
		return nil, nil, err
	}
	stdout, err := redirect(m.Stdout, "w")
	if err != nil {
		_ = closeFiles()
		return nil, nil, err
	}
	stderr, err := redirect(m.Stderr, "w")
	if err != nil {
		_ = closeFiles()
		return nil, nil, err
	}

	// a zero timeout in a manifest means none
	timeout := subprocess.NoTimeout
	if m.Timeout > 0 {
		timeout = m.Timeout
	}

	opts := []subprocess.Option{
		subprocess.WithStdin(stdin),
		subprocess.WithStdout(stdout),
		subprocess.WithStderr(stderr),
		subprocess.WithCwd(m.WorkingDir()),
		subprocess.WithTimeout(timeout),
		subprocess.WithCheck(m.Check),
		subprocess.WithNewProcessGroup(m.NewProcessGroup),
		subprocess.WithClearEnv(m.CleanEnv),
	}
	if len(m.Environment) > 0 {
		opts = append(opts, subprocess.WithEnv(m.Environment))
	}
	if m.KillGrace > 0 {
		opts = append(opts, subprocess.WithKillGrace(m.KillGrace))
	}
	return opts, closeFiles, nil
}

// Run runs the job to completion. extra options are applied after the
// manifest's own, so callers can add a logger or metrics collector.
func (m *Manifest) Run(extra ...subprocess.Option) (*subprocess.CompletedProcess, error) {
	opts, closeFiles, err := m.Options()
	if err != nil {
		return nil, err
	}
	defer closeFiles()

	return subprocess.Run(m.Command, append(opts, extra...)...)
}
