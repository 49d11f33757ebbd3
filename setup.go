package glidein

import (
	"fmt"
	"path/filepath"

	"github.com/bbockelm/golang-glidein/config"
	"github.com/bbockelm/golang-glidein/logging"
)

// SubmitterFromConfig wires the submission pipeline from configuration:
// factory key and frontend descriptor for the resolver, the environment
// generator, the template patcher and condor_submit.
func SubmitterFromConfig(cfg *config.Config, logger *logging.Logger) (*Submitter, error) {
	descriptPath, _ := cfg.Get("FRONTEND_DESCRIPT")
	frontends, err := LoadFrontendDescript(descriptPath)
	if err != nil {
		return nil, err
	}

	generator, err := GeneratorFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	keyFile, _ := cfg.Get("FACTORY_RSA_KEY")
	keyID, _ := cfg.Get("FACTORY_PUB_KEY_ID")
	credRoot, _ := cfg.Get("FACTORY_CREDENTIAL_ROOT")
	instanceTag, _ := cfg.Get("FACTORY_INSTANCE_TAG")

	return &Submitter{
		Resolver: &Resolver{
			NewQuerier:     func(address string) AdQuerier { return NewCollector(address, cfg) },
			Keys:           &FactoryKeys{KeyFile: keyFile, KeyID: keyID},
			Frontends:      frontends,
			Logger:         logger,
			CredentialRoot: credRoot,
			InstanceTag:    instanceTag,
		},
		Synthesizer: &Synthesizer{Generator: generator, Logger: logger},
		Patcher:     &Patcher{Strict: cfg.GetBool("TEMPLATE_STRICT", false)},
		Executor:    &Executor{SubmitPath: cfg.GetDefault("CONDOR_SUBMIT", "condor_submit"), Logger: logger},
		Logger:      logger,
	}, nil
}

// GeneratorFromConfig picks the environment generator: a pre-generated
// SUBMIT_ENV_FILE wins over the SUBMIT_ENV_GENERATOR helper.
func GeneratorFromConfig(cfg *config.Config) (Generator, error) {
	if path := cfg.GetDefault("SUBMIT_ENV_FILE", ""); path != "" {
		return &EnvFileGenerator{Path: path}, nil
	}
	if path := cfg.GetDefault("SUBMIT_ENV_GENERATOR", ""); path != "" {
		args, _ := cfg.Get("SUBMIT_ENV_GENERATOR_ARGS")
		return &ExecGenerator{Path: path, Args: config.SplitList(args)}, nil
	}
	return nil, fmt.Errorf("no submit environment generator: set SUBMIT_ENV_GENERATOR or SUBMIT_ENV_FILE")
}

// RequestFromConfig fills the per-deployment fields of a SubmitRequest for entry.
func RequestFromConfig(cfg *config.Config, entry string) SubmitRequest {
	template := cfg.GetDefault("JOB_TEMPLATE", "")
	if template == "" {
		workDir, _ := cfg.Get("FACTORY_WORK_DIR")
		template = TemplatePath(workDir, entry)
	}
	collector, _ := cfg.Get("COLLECTOR_HOST")
	frontend, _ := cfg.Get("FRONTEND_NAME")
	client, _ := cfg.Get("CLIENT_NAME")

	return SubmitRequest{
		Collector:    collector,
		Frontend:     frontend,
		Entry:        entry,
		Client:       client,
		IdleLifetime: cfg.GetInt("IDLE_LIFETIME", 3600),
		Template:     template,
	}
}

// QueueListerFromConfig returns a lister running CONDOR_Q.
func QueueListerFromConfig(cfg *config.Config, logger *logging.Logger) *QueueLister {
	return &QueueLister{Path: cfg.GetDefault("CONDOR_Q", "condor_q"), Logger: logger}
}

// WorkspacesFromConfig builds the workspace manager, opening the ledger when
// WORKSPACE_DB is set. The caller closes the returned ledger, which may be nil.
func WorkspacesFromConfig(cfg *config.Config, logger *logging.Logger) (*WorkspaceManager, *Ledger, error) {
	var ledger *Ledger
	if path := cfg.GetDefault("WORKSPACE_DB", ""); path != "" {
		var err error
		if ledger, err = OpenLedger(path); err != nil {
			return nil, nil, err
		}
	}
	root, _ := cfg.Get("WORKSPACE_ROOT")
	root, err := filepath.Abs(root)
	if err != nil {
		if ledger != nil {
			_ = ledger.Close()
		}
		return nil, nil, fmt.Errorf("cannot resolve WORKSPACE_ROOT: %w", err)
	}
	minFree := cfg.GetInt("WORKSPACE_MIN_FREE_MB", 0)
	if minFree < 0 {
		minFree = 0
	}
	return NewWorkspaceManager(root, WorkspaceOptions{
		Ledger:       ledger,
		MinFreeBytes: uint64(minFree) << 20,
		Logger:       logger,
	}), ledger, nil
}
