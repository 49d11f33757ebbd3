package glidein

import (
	"fmt"
	"strings"
)

// NotFoundError is returned when the collector has no advertisement for an
// identity/target pair.
type NotFoundError struct {
	Identity string
	Target   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no glideclient advertisement for identity %q and target %q", e.Identity, e.Target)
}

// ValidationError is returned when the credential registry rejects an advertisement.
type ValidationError struct {
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("credential validation failed: %s: %v", e.Reason, e.Err)
	}
	return "credential validation failed: " + e.Reason
}

func (e *ValidationError) Unwrap() error { return e.Err }

// DecryptionError is returned when an encrypted advertisement field cannot be decoded.
type DecryptionError struct {
	Field string
	Err   error
}

func (e *DecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt %s: %v", e.Field, e.Err)
}

func (e *DecryptionError) Unwrap() error { return e.Err }

// AllocationError is returned when a workspace cannot be created.
type AllocationError struct {
	Path string
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("failed to allocate workspace %s: %v", e.Path, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// SubmissionError is returned when condor_submit exits non-zero.
type SubmissionError struct {
	ExitCode int
	Output   []byte
}

func (e *SubmissionError) Error() string {
	out := strings.TrimSpace(string(e.Output))
	if out == "" {
		return fmt.Sprintf("condor_submit exited with status %d", e.ExitCode)
	}
	return fmt.Sprintf("condor_submit exited with status %d: %s", e.ExitCode, out)
}

// TemplateIncompleteError is returned in strict mode when a job template lacks
// one or more redirected directives.
type TemplateIncompleteError struct {
	Path    string
	Missing []string
}

func (e *TemplateIncompleteError) Error() string {
	return fmt.Sprintf("job template %s has no %s directive", e.Path, strings.Join(e.Missing, ", "))
}

// QueueListingError is returned when condor_q cannot be run or exits non-zero.
type QueueListingError struct {
	ExitCode int
	Output   []byte
	Err      error
}

func (e *QueueListingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("queue listing failed: %v", e.Err)
	}
	return fmt.Sprintf("queue listing exited with status %d: %s", e.ExitCode, strings.TrimSpace(string(e.Output)))
}

func (e *QueueListingError) Unwrap() error { return e.Err }
