package glidein

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bbockelm/golang-glidein/logging"
)

// CredentialResolver is satisfied by *Resolver.
type CredentialResolver interface {
	Resolve(ctx context.Context, collectorAddress, identityName, targetName string) (*CredentialRecord, error)
}

// SubmitRequest describes one direct submission to an entry.
type SubmitRequest struct {
	Collector    string
	Frontend     string
	Entry        string
	Client       string
	IdleLifetime int
	// Template is the job description; see TemplatePath for the default.
	Template  string
	Overrides Overrides
	// PatchDir receives the patched template instead of the Patcher's Dir.
	PatchDir string
}

// TemplatePath is the factory's job description for an entry.
func TemplatePath(factoryWorkDir, entry string) string {
	return filepath.Join(factoryWorkDir, "entry_"+entry, "job.condor")
}

// Submitter runs the whole submission: resolve credentials, synthesize the
// environment, patch the template, run condor_submit.
type Submitter struct {
	Resolver    CredentialResolver
	Synthesizer *Synthesizer
	Patcher     *Patcher
	Executor    *Executor
	Logger      *logging.Logger
}

// Environment resolves credentials and synthesizes the submit environment
// without submitting anything.
func (s *Submitter) Environment(ctx context.Context, req SubmitRequest) (*EnvironmentMap, error) {
	creds, err := s.Resolver.Resolve(ctx, req.Collector, req.Frontend, req.Entry)
	if err != nil {
		return nil, err
	}
	return s.Synthesizer.Synthesize(ctx, req.Entry, req.Client, creds, req.IdleLifetime, req.Overrides)
}

// Submit runs the pipeline once. It is not idempotent: each successful call
// queues new jobs.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if req.Template == "" {
		return nil, fmt.Errorf("no job template for entry %s", req.Entry)
	}
	s.Logger.Info(logging.DestinationSubmit, "starting submission", "entry", req.Entry, "frontend", req.Frontend, "count", req.Overrides.Count)

	env, err := s.Environment(ctx, req)
	if err != nil {
		s.Logger.Error(logging.DestinationSubmit, "cannot build submit environment", "entry", req.Entry, "error", err)
		return nil, err
	}

	patcher := s.Patcher
	if patcher == nil {
		patcher = &Patcher{}
	}
	if req.PatchDir != "" {
		p := *patcher
		p.Dir = req.PatchDir
		patcher = &p
	}
	patched, err := patcher.Patch(req.Template)
	if err != nil {
		s.Logger.Error(logging.DestinationSubmit, "cannot patch template", "template", req.Template, "error", err)
		return nil, err
	}
	s.Logger.Debug(logging.DestinationSubmit, "patched template", "source", req.Template, "patched", patched)
	if req.PatchDir == "" {
		// Only copies placed in a workspace are kept for the log archive
		defer func() {
			if err := os.Remove(patched); err != nil {
				s.Logger.Warn(logging.DestinationSubmit, "cannot remove patched template", "patched", patched, "error", err)
			}
		}()
	}

	return s.Executor.Submit(ctx, env, patched)
}
