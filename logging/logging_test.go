package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bbockelm/golang-glidein/config"
)

func TestDestinationFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{
		Writer:              &buf,
		MinVerbosity:        VerbosityDebug,
		EnabledDestinations: map[Destination]bool{DestinationSubmit: true},
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info(DestinationSubmit, "submitted", "cluster", 42)
	logger.Info(DestinationHTTP, "request")

	out := buf.String()
	if !strings.Contains(out, "destination=submit") || !strings.Contains(out, "cluster=42") {
		t.Errorf("missing submit record in %q", out)
	}
	if strings.Contains(out, "request") {
		t.Errorf("HTTP record should have been filtered: %q", out)
	}
}

func TestVerbosityFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&Config{Writer: &buf, MinVerbosity: VerbosityWarn})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Debug(DestinationGeneral, "debug message")
	logger.Info(DestinationGeneral, "info message")
	logger.Warn(DestinationGeneral, "warn message")
	logger.Error(DestinationGeneral, "error message")

	out := buf.String()
	for _, hidden := range []string{"debug message", "info message"} {
		if strings.Contains(out, hidden) {
			t.Errorf("%q should be filtered at WARN", hidden)
		}
	}
	for _, shown := range []string{"warn message", "error message"} {
		if !strings.Contains(out, shown) {
			t.Errorf("%q missing from output", shown)
		}
	}
}

func TestNilLoggerDiscards(_ *testing.T) {
	var logger *Logger
	logger.Info(DestinationGeneral, "nothing happens")
	logger.Error(DestinationWorkspace, "still nothing")
}

func TestParseDestinations(t *testing.T) {
	got := ParseDestinations("HTTP, workspace ,bogus")
	if len(got) != 2 || !got[DestinationHTTP] || !got[DestinationWorkspace] {
		t.Errorf("ParseDestinations = %v", got)
	}
}

func TestParseVerbosity(t *testing.T) {
	tests := map[string]Verbosity{
		"ERROR":   VerbosityError,
		"warning": VerbosityWarn,
		" debug ": VerbosityDebug,
		"":        VerbosityInfo,
		"chatty":  VerbosityInfo,
	}
	for in, want := range tests {
		if got := ParseVerbosity(in); got != want {
			t.Errorf("ParseVerbosity(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestFromConfigWritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "submit.log")
	cfg := config.NewEmpty()
	cfg.Set("LOG", logPath)
	cfg.Set("LOG_VERBOSITY", "DEBUG")
	cfg.Set("LOG_DESTINATIONS", "SUBMIT")

	logger, err := FromConfig(cfg)
	if err != nil {
		t.Fatalf("FromConfig failed: %v", err)
	}
	if logger.config.OutputPath != logPath {
		t.Errorf("OutputPath = %q, want %q", logger.config.OutputPath, logPath)
	}
	if logger.config.MinVerbosity != VerbosityDebug {
		t.Errorf("MinVerbosity = %v, want debug", logger.config.MinVerbosity)
	}
	if !logger.shouldLog(DestinationSubmit) || logger.shouldLog(DestinationHTTP) {
		t.Error("destination filter not applied")
	}
}
