package glidein

import (
	"fmt"
	"os"
	"regexp"
)

// directive is a job template line redirected through the environment.
type directive struct {
	keyword     string
	pattern     *regexp.Regexp
	replacement string
}

func newDirective(keyword, variable string) directive {
	return directive{
		keyword:     keyword,
		pattern:     regexp.MustCompile(`(?m)^` + keyword + `[ \t]*=[^\r\n]*`),
		replacement: keyword + " = $ENV(" + variable + ")",
	}
}

var templateDirectives = []directive{
	newDirective("Log", EnvLogFile),
	newDirective("Output", EnvOutputFile),
	newDirective("Error", EnvErrorFile),
	newDirective("Executable", EnvExecutable),
}

// PatchTemplate rewrites the Log, Output, Error and Executable directives of
// a job description to read their values from the submit environment. Other
// lines are returned unchanged. missing lists directives with no line.
func PatchTemplate(text string) (patched string, missing []string) {
	patched = text
	for _, d := range templateDirectives {
		if !d.pattern.MatchString(patched) {
			missing = append(missing, d.keyword)
			continue
		}
		patched = d.pattern.ReplaceAllLiteralString(patched, d.replacement)
	}
	return patched, missing
}

// Patcher writes patched copies of job templates.
type Patcher struct {
	// Dir receives the patched copies. Empty means os.TempDir().
	Dir string
	// Strict fails templates lacking any redirected directive instead of
	// leaving the check to condor_submit.
	Strict bool
}

// Patch writes a patched copy of the template at templatePath to a new,
// uniquely named file and returns its path. The source is never modified.
func (p *Patcher) Patch(templatePath string) (string, error) {
	data, err := os.ReadFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("failed to read job template: %w", err)
	}

	patched, missing := PatchTemplate(string(data))
	if p.Strict && len(missing) > 0 {
		return "", &TemplateIncompleteError{Path: templatePath, Missing: missing}
	}

	f, err := os.CreateTemp(p.Dir, "job-*.condor")
	if err != nil {
		return "", fmt.Errorf("failed to create patched template: %w", err)
	}
	if _, err := f.WriteString(patched); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write patched template: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("failed to write patched template: %w", err)
	}
	return f.Name(), nil
}
