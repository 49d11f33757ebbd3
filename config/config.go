// Package config implements configuration file parsing for the glidein submission tools.
//
// The configuration language is the HTCondor one, reduced to what the tools need:
// - Variable definitions with macro expansion ($(NAME) and $(NAME:default))
// - Function macros ($ENV, $INT, $DIRNAME, $BASENAME)
// - Self-referential appends (A = $(A) more)
// - Comments and line continuation
// - LOCAL_CONFIG_FILE and LOCAL_CONFIG_DIR includes
//
// Example usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	workDir, _ := cfg.Get("FACTORY_WORK_DIR")
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// EnvConfigFile names the environment variable pointing at the main config file.
// The special value ONLY_ENV skips file loading entirely.
const EnvConfigFile = "GLIDEIN_SUBMIT_CONFIG"

// envOverridePrefix marks environment variables that override config values,
// e.g. _GLIDEIN_COLLECTOR_HOST=cm.example.com
const envOverridePrefix = "_GLIDEIN_"

// DefaultConfigFile is read when EnvConfigFile is unset
var DefaultConfigFile = "/etc/gwms-submit/config"

// Config represents a parsed configuration with key-value pairs
type Config struct {
	values map[string]string
	// Track macro evaluation to detect loops
	evaluating map[string]bool
	// Track included files to prevent cycles
	includedFiles map[string]bool
}

// New creates a new Config from the runtime environment
func New() (*Config, error) {
	cfg := NewEmpty()
	return cfg, cfg.LoadFromEnvironment()
}

// NewEmpty creates a Config holding only built-in values and defaults
func NewEmpty() *Config {
	cfg := &Config{
		values:        make(map[string]string),
		evaluating:    make(map[string]bool),
		includedFiles: make(map[string]bool),
	}
	cfg.initBuiltins()
	return cfg
}

// NewFromReader creates a Config from an io.Reader on top of the built-in defaults
func NewFromReader(r io.Reader) (*Config, error) {
	cfg := NewEmpty()
	if err := cfg.parseReader(r, ""); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewFromFile creates a Config from a single file on top of the built-in defaults.
// Environment overrides are not applied.
func NewFromFile(path string) (*Config, error) {
	cfg := NewEmpty()
	if err := cfg.ParseFile(path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get retrieves a configuration value with macros expanded
func (c *Config) Get(key string) (string, bool) {
	if strings.HasPrefix(key, "$(") && strings.HasSuffix(key, ")") {
		key = key[2 : len(key)-1]
	}

	val, ok := c.values[key]
	if !ok {
		return "", false
	}

	expanded, err := c.expand(val)
	if err != nil {
		return val, true // Return unexpanded on error
	}
	return expanded, true
}

// GetDefault returns the value of key, or def when it is unset or empty
func (c *Config) GetDefault(key, def string) string {
	if val, ok := c.Get(key); ok && val != "" {
		return val
	}
	return def
}

// GetInt returns key parsed as an integer, or def
func (c *Config) GetInt(key string, def int) int {
	val, ok := c.Get(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(val))
	if err != nil {
		return def
	}
	return n
}

// GetFloat returns key parsed as a float, or def
func (c *Config) GetFloat(key string, def float64) float64 {
	val, ok := c.Get(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return def
	}
	return f
}

// GetBool returns key parsed as a boolean (true/false, yes/no, 1/0), or def
func (c *Config) GetBool(key string, def bool) bool {
	val, ok := c.Get(key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	}
	return def
}

// GetDuration returns key as a duration. Plain integers are seconds,
// anything else goes through time.ParseDuration.
func (c *Config) GetDuration(key string, def time.Duration) time.Duration {
	val, ok := c.Get(key)
	if !ok {
		return def
	}
	val = strings.TrimSpace(val)
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

// Set sets a configuration value
func (c *Config) Set(key, value string) {
	// Self-referential definitions are expanded immediately
	if strings.Contains(value, "$("+key+")") {
		if oldVal, ok := c.values[key]; ok {
			value = strings.ReplaceAll(value, "$("+key+")", oldVal)
		} else {
			value = strings.ReplaceAll(value, "$("+key+")", "")
		}
	}

	c.values[key] = value
}

// Keys returns all configuration keys in sorted order
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// initBuiltins initializes built-in predefined macros and tool defaults
func (c *Config) initBuiltins() {
	for _, pd := range paramDefaults {
		c.values[pd.Name] = pd.Default
	}

	c.Set("SECOND", "1")
	c.Set("MINUTE", "60")
	c.Set("HOUR", "3600")
	c.Set("DAY", "86400")

	hostname, _ := os.Hostname()
	c.Set("HOSTNAME", strings.Split(hostname, ".")[0])
	c.Set("FULL_HOSTNAME", hostname)

	if u, err := user.Current(); err == nil {
		c.Set("USERNAME", u.Username)
	}

	c.Set("PID", fmt.Sprintf("%d", os.Getpid()))
}

// ParseFile parses a configuration file into c
func (c *Config) ParseFile(path string) (err error) {
	//nolint:gosec // G304: Config path comes from the operator
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close config file: %w", cerr)
		}
	}()

	return c.parseReader(f, path)
}

// parseReader parses configuration from an io.Reader
func (c *Config) parseReader(r io.Reader, filename string) error {
	if filename != "" {
		if c.includedFiles[filename] {
			return fmt.Errorf("circular include detected: %s", filename)
		}
		c.includedFiles[filename] = true
	}

	scanner := bufio.NewScanner(r)
	var currentLine string
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := scanner.Text()

		if strings.HasSuffix(strings.TrimSpace(line), "\\") {
			currentLine += strings.TrimSuffix(strings.TrimRight(line, " \t"), "\\")
			continue
		}

		currentLine += line
		if err := c.parseLine(currentLine); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
		currentLine = ""
	}

	if currentLine != "" {
		if err := c.parseLine(currentLine); err != nil {
			return fmt.Errorf("line %d: %w", lineNum, err)
		}
	}

	return scanner.Err()
}

// parseLine parses a single configuration line
func (c *Config) parseLine(line string) error {
	line = strings.TrimSpace(line)

	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}

	// Skip [Section] headers
	if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
		return nil
	}

	eqIdx := strings.Index(line, "=")
	if eqIdx == -1 {
		return fmt.Errorf("expected KEY = value, got %q", line)
	}

	key := strings.TrimSpace(line[:eqIdx])
	if key == "" {
		return fmt.Errorf("missing key before '='")
	}
	value := strings.TrimSpace(line[eqIdx+1:])

	c.Set(key, value)
	return nil
}

// LoadFromEnvironment loads the main config file, its includes, and
// _GLIDEIN_ prefixed environment overrides
func (c *Config) LoadFromEnvironment() error {
	configPath := os.Getenv(EnvConfigFile)
	switch configPath {
	case "ONLY_ENV":
	case "":
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			if err := c.ParseFile(DefaultConfigFile); err != nil {
				return err
			}
		}
	default:
		if err := c.ParseFile(configPath); err != nil {
			return err
		}
	}

	if configPath != "ONLY_ENV" {
		if err := c.processLocalConfigFile(); err != nil {
			return err
		}
		if err := c.processLocalConfigDir(); err != nil {
			return err
		}
	}

	for _, env := range os.Environ() {
		if !strings.HasPrefix(env, envOverridePrefix) {
			continue
		}
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			c.Set(strings.TrimPrefix(parts[0], envOverridePrefix), parts[1])
		}
	}

	return nil
}

// processLocalConfigFile processes files listed in LOCAL_CONFIG_FILE, left to right
func (c *Config) processLocalConfigFile() error {
	fileList, ok := c.Get("LOCAL_CONFIG_FILE")
	if !ok || fileList == "" {
		return nil
	}

	for _, file := range splitConfigList(fileList) {
		if err := c.ParseFile(file); err != nil {
			return fmt.Errorf("error parsing %s: %w", file, err)
		}
	}
	return nil
}

// processLocalConfigDir processes directories listed in LOCAL_CONFIG_DIR.
// Files within each directory are processed in lexicographical order.
func (c *Config) processLocalConfigDir() error {
	dirList, ok := c.Get("LOCAL_CONFIG_DIR")
	if !ok || dirList == "" {
		return nil
	}

	for _, dir := range splitConfigList(dirList) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("error reading directory %s: %w", dir, err)
		}

		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			filePath := filepath.Join(dir, entry.Name())
			if err := c.ParseFile(filePath); err != nil {
				return fmt.Errorf("error parsing %s: %w", filePath, err)
			}
		}
	}
	return nil
}

// splitConfigList splits a configuration list on commas and/or spaces
func splitConfigList(list string) []string {
	return strings.Fields(strings.ReplaceAll(list, ",", " "))
}

// SplitList splits a comma and/or space separated configuration value
func SplitList(list string) []string {
	return splitConfigList(list)
}
