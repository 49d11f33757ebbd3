// Package main submits glideins directly to a factory entry, bypassing the
// factory's own matchmaking.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/config"
	"github.com/bbockelm/golang-glidein/logging"
)

var (
	logFile      = flag.String("logfile", "job.log", "Job event log")
	outFile      = flag.String("outfile", "job.out", "Job standard output")
	errFile      = flag.String("errfile", "job.err", "Job standard error")
	count        = flag.Int("n", 1, "Number of glideins to submit")
	frontend     = flag.String("frontend", "", "Frontend identity (default: FRONTEND_NAME)")
	client       = flag.String("client", "", "Client name (default: CLIENT_NAME)")
	collector    = flag.String("collector", "", "Collector address (default: COLLECTOR_HOST)")
	templateFile = flag.String("template", "", "Job description template (default: JOB_TEMPLATE or the entry's job.condor)")
	idleLifetime = flag.Int("idle-lifetime", 0, "Glidein idle lifetime in seconds (default: IDLE_LIFETIME)")
	writeEnv     = flag.String("write-env", "", "Write the submit environment to FILE instead of submitting")
	configFile   = flag.String("config", "", "Configuration file (default: $"+config.EnvConfigFile+" or "+config.DefaultConfigFile+")")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] ENTRY_NAME EXECUTABLE [ARGUMENTS...]\n\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, flag.Arg(0), flag.Arg(1), flag.Args()[2:])
	stop()
	os.Exit(code)
}

func run(ctx context.Context, entry, executable string, args []string) int {
	if *configFile != "" {
		if err := os.Setenv(config.EnvConfigFile, *configFile); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
	}
	cfg, err := config.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	logger, err := logging.FromConfig(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}

	submitter, err := glidein.SubmitterFromConfig(cfg, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	req := glidein.RequestFromConfig(cfg, entry)
	applyFlags(&req)
	req.Overrides = glidein.Overrides{
		Count:      *count,
		LogFile:    *logFile,
		OutputFile: *outFile,
		ErrorFile:  *errFile,
		Executable: executable,
		Arguments:  args,
		WorkDir:    cwd,
	}

	if *writeEnv != "" {
		env, err := submitter.Environment(ctx, req)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if err := glidein.WriteEnvFile(env, *writeEnv); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		logger.Info(logging.DestinationSubmit, "wrote submit environment", "file", *writeEnv, "variables", env.Len())
		return 0
	}

	result, err := submitter.Submit(ctx, req)
	if err != nil {
		var subErr *glidein.SubmissionError
		if errors.As(err, &subErr) {
			_, _ = os.Stderr.Write(subErr.Output)
			if subErr.ExitCode > 0 {
				return subErr.ExitCode
			}
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	_, _ = os.Stdout.Write(result.Output)
	return 0
}

func applyFlags(req *glidein.SubmitRequest) {
	if *frontend != "" {
		req.Frontend = *frontend
	}
	if *client != "" {
		req.Client = *client
	}
	if *collector != "" {
		req.Collector = *collector
	}
	if *templateFile != "" {
		req.Template = *templateFile
	}
	if *idleLifetime > 0 {
		req.IdleLifetime = *idleLifetime
	}
}
