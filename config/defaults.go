package config

// paramDefault is a built-in default for a configuration parameter.
// Defaults are stored unexpanded and may reference other parameters.
type paramDefault struct {
	Name    string
	Default string
}

var paramDefaults = []paramDefault{
	{"COLLECTOR_HOST", "$(FULL_HOSTNAME)"},
	{"FACTORY_WORK_DIR", "/var/lib/gwms-factory/work-dir"},
	{"FACTORY_CREDENTIAL_ROOT", "/var/lib/gwms-factory/client-proxies"},
	{"FACTORY_INSTANCE_TAG", "glidein_gfactory_instance"},
	{"FACTORY_RSA_KEY", "$(FACTORY_WORK_DIR)/rsa.key"},
	{"FRONTEND_DESCRIPT", "$(FACTORY_WORK_DIR)/frontend.descript"},
	{"FRONTEND_NAME", "vofrontend_service"},
	{"CLIENT_NAME", "test.test"},
	{"IDLE_LIFETIME", "3600"},
	{"TEMPLATE_STRICT", "false"},
	{"CONDOR_SUBMIT", "condor_submit"},
	{"CONDOR_Q", "condor_q"},
	{"WORKSPACE_ROOT", "/var/lib/gwms-submit/logs"},
	{"WORKSPACE_MIN_FREE_MB", "0"},
	{"WORKSPACE_TTL", "0"},
	{"SUBMIT_RATE_LIMIT", "0"},
	{"SUBMIT_PER_USER_RATE_LIMIT", "0"},
	{"QUEUE_RATE_LIMIT", "0"},
	{"QUEUE_PER_USER_RATE_LIMIT", "0"},
	{"LOG", "stderr"},
	{"LOG_VERBOSITY", "INFO"},
}
