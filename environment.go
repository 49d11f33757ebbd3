package glidein

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bbockelm/golang-glidein/logging"
)

// Variables condor_submit reads from the patched job template.
const (
	EnvCount      = "GLIDEIN_COUNT"
	EnvLogFile    = "LOGFILE"
	EnvOutputFile = "OUTPUTFILE"
	EnvErrorFile  = "ERRORFILE"
	EnvExecutable = "EXECUTABLE"
	EnvArguments  = "ARGUMENTS"
)

var envKeyPattern = regexp.MustCompile(`^[A-Z_][A-Z0-9_]*$`)

// EnvironmentMap is an ordered set of submit environment variables. Setting
// an existing key replaces its value in place.
type EnvironmentMap struct {
	keys   []string
	values map[string]string
}

// NewEnvironmentMap returns an empty map.
func NewEnvironmentMap() *EnvironmentMap {
	return &EnvironmentMap{values: make(map[string]string)}
}

// ParseEnvironment builds a map from KEY=value lines. Blank lines and #
// comments are skipped and an "export " prefix is accepted.
func ParseEnvironment(lines []string) (*EnvironmentMap, error) {
	env := NewEnvironmentMap()
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return nil, fmt.Errorf("expected KEY=value, got %q", line)
		}
		if err := env.Set(strings.TrimSpace(key), value); err != nil {
			return nil, err
		}
	}
	return env, nil
}

// Set adds or replaces a variable.
func (m *EnvironmentMap) Set(key, value string) error {
	if !envKeyPattern.MatchString(key) {
		return fmt.Errorf("invalid environment variable name %q", key)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return nil
}

// Get returns the value of key.
func (m *EnvironmentMap) Get(key string) (string, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Keys returns the variable names in insertion order.
func (m *EnvironmentMap) Keys() []string {
	return append([]string(nil), m.keys...)
}

// Len returns the number of variables.
func (m *EnvironmentMap) Len() int {
	return len(m.keys)
}

// Environ returns KEY=value pairs in order, suitable for exec.Cmd.Env.
// The result is never nil so that a child gets exactly this environment.
func (m *EnvironmentMap) Environ() []string {
	out := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		out = append(out, k+"="+m.values[k])
	}
	return out
}

// Overrides are the caller's submission parameters. Zero values leave the
// generated environment untouched.
type Overrides struct {
	Count      int
	LogFile    string
	OutputFile string
	ErrorFile  string
	Executable string
	// Arguments are joined with single spaces. A nil slice is no override.
	Arguments []string
	// WorkDir resolves relative paths. Empty means the process working directory.
	WorkDir string
}

// Synthesizer builds the submit environment for one request.
type Synthesizer struct {
	Generator Generator
	Logger    *logging.Logger
}

// Synthesize asks the generator for the entry's environment and applies the
// overrides in a fixed order: count, log, output, error, executable, arguments.
// Relative paths resolve against the caller's directory, not the workspace.
func (s *Synthesizer) Synthesize(ctx context.Context, entryName, clientName string, creds *CredentialRecord, idleLifetime int, ov Overrides) (*EnvironmentMap, error) {
	lines, err := s.Generator.Generate(ctx, GenerateRequest{
		Entry:        entryName,
		Client:       clientName,
		Credentials:  creds,
		Web:          nil,
		Params:       map[string]string{},
		IdleLifetime: idleLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("submit environment generation failed: %w", err)
	}
	env, err := ParseEnvironment(lines)
	if err != nil {
		return nil, fmt.Errorf("bad submit environment: %w", err)
	}
	s.Logger.Debug(logging.DestinationSubmit, "generated submit environment", "entry", entryName, "variables", env.Len())

	workDir := ov.WorkDir
	if workDir == "" {
		if workDir, err = os.Getwd(); err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
	}
	resolve := func(p string) string {
		if filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(workDir, p)
	}

	// Keys are constants, Set cannot fail here
	if ov.Count > 0 {
		_ = env.Set(EnvCount, strconv.Itoa(ov.Count))
	}
	if ov.LogFile != "" {
		_ = env.Set(EnvLogFile, resolve(ov.LogFile))
	}
	if ov.OutputFile != "" {
		_ = env.Set(EnvOutputFile, resolve(ov.OutputFile))
	}
	if ov.ErrorFile != "" {
		_ = env.Set(EnvErrorFile, resolve(ov.ErrorFile))
	}
	if ov.Executable != "" {
		_ = env.Set(EnvExecutable, resolve(ov.Executable))
	}
	if ov.Arguments != nil {
		_ = env.Set(EnvArguments, strings.Join(ov.Arguments, " "))
	}

	return env, nil
}
