package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dl-alexandre/gdbackup/internal/logging"
	"github.com/dl-alexandre/gdbackup/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// HistoryFileName is the default name of the cycle history database
	HistoryFileName = "history.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GDBACKUP_"
)

// DownloadPolicy decides what a failed download does to the rest of a cycle
type DownloadPolicy string

const (
	// DownloadPolicyAbort cancels the remaining downloads and fails the cycle
	DownloadPolicyAbort DownloadPolicy = "abort"
	// DownloadPolicyBestEffort archives whatever downloaded successfully
	DownloadPolicyBestEffort DownloadPolicy = "best-effort"
)

// Config holds application configuration
type Config struct {
	// ServiceAccountKeyFile is the path to the service account JSON key
	ServiceAccountKeyFile string `json:"serviceAccountKeyFile"`

	// ImpersonateUser is the Workspace user to act as (domain-wide delegation)
	ImpersonateUser string `json:"impersonateUser,omitempty"`

	// Scopes are the OAuth scopes requested for the service account
	Scopes []string `json:"scopes"`

	// ServerPort is the port of the health endpoint
	ServerPort int `json:"serverPort"`

	// BackupInterval is the time between cycle starts in seconds
	BackupInterval int `json:"backupInterval"`

	// RootDir is the working root; BaseDir and ArchiveDir are relative to it
	RootDir string `json:"rootDir"`

	// BaseDir is the staging directory the remote tree is mirrored into
	BaseDir string `json:"baseDir"`

	// ArchiveDir is where finished archives are written
	ArchiveDir string `json:"archiveDir"`

	// IgnoreList holds names and glob patterns left out of archives
	IgnoreList []string `json:"ignoreList"`

	// CleanDirectory empties the staging directory around every cycle
	CleanDirectory bool `json:"cleanDirectory"`

	// Concurrency bounds the number of simultaneous downloads
	Concurrency int `json:"concurrency"`

	// DownloadPolicy is "abort" or "best-effort"
	DownloadPolicy DownloadPolicy `json:"downloadPolicy"`

	// MaxDepth bounds folder nesting for resolution and scanning
	MaxDepth int `json:"maxDepth"`

	// HistoryPath is the SQLite history database, defaults to the config dir
	HistoryPath string `json:"historyPath,omitempty"`

	// MaxRetries is the maximum number of retries for API calls
	MaxRetries int `json:"maxRetries"`

	// RetryBaseDelay is the base delay for exponential backoff in milliseconds
	RetryBaseDelay int `json:"retryBaseDelay"`

	// RequestTimeout is the per-request timeout in seconds
	RequestTimeout int `json:"requestTimeout"`

	// LogLevel sets the logging verbosity (debug, info, warn, error)
	LogLevel string `json:"logLevel"`

	// LogFile enables JSON-lines logging to a file
	LogFile string `json:"logFile,omitempty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Scopes:         append([]string(nil), utils.DefaultScopes...),
		ServerPort:     utils.DefaultServerPort,
		BackupInterval: int(utils.DefaultBackupInterval / time.Second),
		RootDir:        utils.DefaultRootDir,
		BaseDir:        utils.DefaultBaseDir,
		ArchiveDir:     utils.DefaultArchiveDir,
		IgnoreList:     append([]string(nil), utils.DefaultIgnoreList...),
		CleanDirectory: true,
		Concurrency:    utils.DefaultConcurrency,
		DownloadPolicy: DownloadPolicyAbort,
		MaxDepth:       utils.DefaultMaxDepth,
		MaxRetries:     utils.DefaultMaxRetries,
		RetryBaseDelay: utils.DefaultRetryDelayMs,
		RequestTimeout: 60,
		LogLevel:       "info",
	}
}

// Load loads configuration with precedence: env vars > config file > defaults.
// CLI flags are applied on top by the caller. An empty path uses the default
// location; a missing default file is not an error, a missing explicit one is.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	explicit := path != ""
	if !explicit {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(path); err != nil {
		if explicit || !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile overlays the JSON file at path; absent keys keep their value
func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	return json.Unmarshal(data, c)
}

// loadFromEnv loads configuration from environment variables
func (c *Config) loadFromEnv() error {
	strs := map[string]*string{
		"SERVICE_ACCOUNT_KEY_FILE": &c.ServiceAccountKeyFile,
		"IMPERSONATE_USER":         &c.ImpersonateUser,
		"ROOT_DIR":                 &c.RootDir,
		"BASE_DIR":                 &c.BaseDir,
		"ARCHIVE_DIR":              &c.ArchiveDir,
		"HISTORY_PATH":             &c.HistoryPath,
		"LOG_LEVEL":                &c.LogLevel,
		"LOG_FILE":                 &c.LogFile,
	}
	for name, dst := range strs {
		if v := os.Getenv(EnvPrefix + name); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SERVER_PORT":      &c.ServerPort,
		"BACKUP_INTERVAL":  &c.BackupInterval,
		"CONCURRENCY":      &c.Concurrency,
		"MAX_DEPTH":        &c.MaxDepth,
		"MAX_RETRIES":      &c.MaxRetries,
		"RETRY_BASE_DELAY": &c.RetryBaseDelay,
		"REQUEST_TIMEOUT":  &c.RequestTimeout,
	}
	for name, dst := range ints {
		v := os.Getenv(EnvPrefix + name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %q is not an integer", EnvPrefix, name, v)
		}
		*dst = n
	}

	if v := os.Getenv(EnvPrefix + "SCOPES"); v != "" {
		c.Scopes = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "IGNORE_LIST"); v != "" {
		c.IgnoreList = splitList(v)
	}
	if v := os.Getenv(EnvPrefix + "CLEAN_DIRECTORY"); v != "" {
		c.CleanDirectory = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "DOWNLOAD_POLICY"); v != "" {
		c.DownloadPolicy = DownloadPolicy(v)
	}

	// The conventional Google variable is honoured when nothing else is set
	if c.ServiceAccountKeyFile == "" {
		c.ServiceAccountKeyFile = os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")
	}
	return nil
}

// Save saves the configuration to path, or to the default location
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got: %d", c.ServerPort)
	}

	if c.BackupInterval < 1 {
		return fmt.Errorf("backup interval must be at least 1 second, got: %d", c.BackupInterval)
	}

	if len(c.Scopes) == 0 {
		return fmt.Errorf("at least one scope is required")
	}

	// The staging directory may be removed recursively, so it must name a
	// real subdirectory of the root
	base := filepath.Clean(c.BaseDir)
	if c.BaseDir == "" || base == "." || base == ".." || filepath.IsAbs(base) ||
		strings.HasPrefix(base, ".."+string(filepath.Separator)) {
		return fmt.Errorf("base dir must be a relative subdirectory of the root dir, got: %q", c.BaseDir)
	}

	if c.RootDir == "" {
		return fmt.Errorf("root dir must not be empty")
	}

	// Archives inside the staging directory are deleted by the clean-up or
	// packed into the next archive
	if isWithin(c.StagingDir(), c.ArchivePath()) {
		return fmt.Errorf("archive dir must not be inside the staging directory %s, got: %s", c.StagingDir(), c.ArchivePath())
	}

	if c.Concurrency < 1 || c.Concurrency > 64 {
		return fmt.Errorf("concurrency must be between 1 and 64, got: %d", c.Concurrency)
	}

	if c.DownloadPolicy != DownloadPolicyAbort && c.DownloadPolicy != DownloadPolicyBestEffort {
		return fmt.Errorf("invalid download policy: %s (must be '%s' or '%s')",
			c.DownloadPolicy, DownloadPolicyAbort, DownloadPolicyBestEffort)
	}

	if c.MaxDepth < 1 || c.MaxDepth > 4096 {
		return fmt.Errorf("max depth must be between 1 and 4096, got: %d", c.MaxDepth)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("max retries must be between 0 and 10, got: %d", c.MaxRetries)
	}

	if c.RetryBaseDelay < 100 || c.RetryBaseDelay > 60000 {
		return fmt.Errorf("retry base delay must be between 100ms and 60000ms, got: %d", c.RetryBaseDelay)
	}

	if c.RequestTimeout < 1 || c.RequestTimeout > 3600 {
		return fmt.Errorf("request timeout must be between 1 and 3600 seconds, got: %d", c.RequestTimeout)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	return nil
}

// GetBackupInterval returns the backup interval as a duration
func (c *Config) GetBackupInterval() time.Duration {
	return time.Duration(c.BackupInterval) * time.Second
}

// GetRetryBaseDelay returns the retry base delay as a duration
func (c *Config) GetRetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelay) * time.Millisecond
}

// GetRequestTimeout returns the request timeout as a duration
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// StagingDir is the directory the remote tree is mirrored into
func (c *Config) StagingDir() string {
	return filepath.Join(c.RootDir, c.BaseDir)
}

// ArchivePath is the directory archives are written to
func (c *Config) ArchivePath() string {
	if filepath.IsAbs(c.ArchiveDir) {
		return c.ArchiveDir
	}
	return filepath.Join(c.RootDir, c.ArchiveDir)
}

// isWithin reports whether child is dir or below it
func isWithin(dir, child string) bool {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		absDir = filepath.Clean(dir)
	}
	absChild, err := filepath.Abs(child)
	if err != nil {
		absChild = filepath.Clean(child)
	}
	rel, err := filepath.Rel(absDir, absChild)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// HistoryDBPath returns HistoryPath or the default database in the config dir
func (c *Config) HistoryDBPath() (string, error) {
	if c.HistoryPath != "" {
		return c.HistoryPath, nil
	}
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, HistoryFileName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "gdbackup"), nil
}

// parseBool parses a boolean value from a string
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
