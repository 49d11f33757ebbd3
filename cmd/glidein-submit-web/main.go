// Package main serves the web front end for direct glidein submission.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	glidein "github.com/bbockelm/golang-glidein"
	"github.com/bbockelm/golang-glidein/config"
	"github.com/bbockelm/golang-glidein/httpserver"
	"github.com/bbockelm/golang-glidein/logging"
	"github.com/bbockelm/golang-glidein/ratelimit"
)

var (
	listenAddr = flag.String("listen", ":8080", "Address to listen on")
	configFile = flag.String("config", "", "Configuration file (default: $"+config.EnvConfigFile+" or "+config.DefaultConfigFile+")")
	entryName  = flag.String("entry", "", "Entry to submit to (default: ENTRY_NAME from the configuration)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func loadConfig() (*config.Config, error) {
	if *configFile != "" {
		if err := os.Setenv(config.EnvConfigFile, *configFile); err != nil {
			return nil, err
		}
	}
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.FromConfig(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	entry := *entryName
	if entry == "" {
		entry = cfg.GetDefault("ENTRY_NAME", "")
	}
	if entry == "" {
		return fmt.Errorf("no entry: pass -entry or set ENTRY_NAME")
	}

	submitter, err := glidein.SubmitterFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	base := glidein.RequestFromConfig(cfg, entry)

	workspaces, ledger, err := glidein.WorkspacesFromConfig(cfg, logger)
	if err != nil {
		return err
	}
	if ledger != nil {
		defer ledger.Close()
	}

	var sessionKey []byte
	if path := cfg.GetDefault("SESSION_KEY_FILE", ""); path != "" {
		if sessionKey, err = httpserver.LoadSigningKey(path); err != nil {
			return err
		}
	}

	// The collector is only needed per submission; an unreachable one is not fatal at startup
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	result, err := glidein.NewCollector(base.Collector, cfg).Ping(pingCtx)
	cancelPing()
	if err != nil {
		logger.Warn(logging.DestinationCollector, "collector ping failed", "collector", base.Collector, "error", err)
	} else {
		logger.Info(logging.DestinationCollector, "collector reachable", "collector", base.Collector, "session", result.String())
	}

	server, err := httpserver.NewServer(httpserver.Config{
		ListenAddr:   *listenAddr,
		Submitter:    submitter,
		Base:         base,
		Workspaces:   workspaces,
		Queue:        glidein.QueueListerFromConfig(cfg, logger),
		RateLimits:   ratelimit.ConfigFromGlidein(cfg),
		SessionKey:   sessionKey,
		Logger:       logger,
		WorkspaceTTL: cfg.GetDuration("WORKSPACE_TTL", 0),
	})
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	select {
	case sig := <-sigChan:
		logger.Info(logging.DestinationGeneral, "received signal, shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(ctx)
	case err := <-errChan:
		return err
	}
}
