package glidein

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// GenerateRequest carries the inputs of the factory's submit environment
// computation for one entry.
type GenerateRequest struct {
	Entry        string
	Client       string
	Credentials  *CredentialRecord
	Web          *ClientWeb
	Params       map[string]string
	IdleLifetime int
}

// Generator produces KEY=value lines for a submission.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) ([]string, error)
}

// ExecGenerator runs an external helper that prints KEY=value lines.
type ExecGenerator struct {
	Path string
	Args []string
}

// Generate implements Generator.
func (g *ExecGenerator) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	args := append([]string(nil), g.Args...)
	args = append(args,
		"--entry", req.Entry,
		"--client", req.Client,
		"--idle-lifetime", strconv.Itoa(req.IdleLifetime),
	)
	if c := req.Credentials; c != nil {
		args = append(args,
			"--user", c.UserName,
			"--security-class", c.SecurityClass,
			"--proxy-id", c.ProxyID,
			"--cred-dir", c.CredDir,
		)
		names := make([]string, 0, len(c.Credentials))
		for name := range c.Credentials {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			args = append(args, "--credential", name+"="+c.Credentials[name])
		}
	}

	cmd := exec.CommandContext(ctx, g.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", g.Path, err, strings.TrimSpace(stderr.String()))
	}
	return strings.Split(strings.TrimRight(string(out), "\n"), "\n"), nil
}

// EnvFileGenerator returns the contents of a pre-generated job.env file.
type EnvFileGenerator struct {
	Path string
}

// Generate implements Generator. The request is ignored; lines are sorted by key.
func (g *EnvFileGenerator) Generate(_ context.Context, _ GenerateRequest) ([]string, error) {
	vars, err := godotenv.Read(g.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", g.Path, err)
	}
	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, k+"="+vars[k])
	}
	return lines, nil
}

// WriteEnvFile writes env as a job.env file that EnvFileGenerator can read back.
func WriteEnvFile(env *EnvironmentMap, path string) error {
	vars := make(map[string]string, env.Len())
	for _, k := range env.Keys() {
		vars[k], _ = env.Get(k)
	}
	if err := godotenv.Write(vars, path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
