package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	errs "flickrbackup/pkg/errors"
)

// FileName is the config file looked up in the destination and working directories
const FileName = "flickr-backup.yaml"

// Config holds all configuration options for a backup run
type Config struct {
	// Flickr credentials and API settings
	Flickr FlickrConfig `yaml:"flickr" json:"flickr"`

	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry" json:"retry"`
	Download  DownloadConfig  `yaml:"download" json:"download"`

	// On-disk naming
	Layout LayoutConfig `yaml:"layout" json:"layout"`

	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Manifest ManifestConfig `yaml:"manifest" json:"manifest"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// FlickrConfig holds Flickr-specific configuration
type FlickrConfig struct {
	Username  string `yaml:"username" json:"username"`
	APIKey    string `yaml:"api_key" json:"api_key"`
	APISecret string `yaml:"api_secret" json:"api_secret"`
	// Account names a stored credential set in the auth manager
	Account   string `yaml:"account,omitempty" json:"account,omitempty"`
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	PerPage   int    `yaml:"per_page" json:"per_page"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Strategy          string `yaml:"strategy" json:"strategy"`
	RequestsPerMinute int    `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int    `yaml:"burst_size" json:"burst_size"`
}

// RetryConfig controls retries of remote calls
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" json:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" json:"max_backoff"`
	Multiplier     float64       `yaml:"multiplier" json:"multiplier"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" json:"timeout"`
	VerifyContent bool          `yaml:"verify_content" json:"verify_content"`
	DryRun        bool          `yaml:"dry_run" json:"dry_run"`
}

// LayoutConfig controls local file naming
type LayoutConfig struct {
	MinPadWidth int `yaml:"min_pad_width" json:"min_pad_width"`
}

// StorageConfig controls the local writer
type StorageConfig struct {
	StaleClaimAfter time.Duration `yaml:"stale_claim_after" json:"stale_claim_after"`
}

// ManifestConfig selects the download ledger backend
type ManifestConfig struct {
	Backend string `yaml:"backend" json:"backend"`
	Path    string `yaml:"path,omitempty" json:"path,omitempty"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level   string `yaml:"level" json:"level"`
	Format  string `yaml:"format" json:"format"`
	File    string `yaml:"file" json:"file"`
	NoColor bool   `yaml:"no_color" json:"no_color"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Flickr: FlickrConfig{
			Endpoint:  "https://api.flickr.com/services/rest/",
			PerPage:   500,
			UserAgent: "flickrbackup/1.0",
		},
		RateLimit: RateLimitConfig{
			Strategy:          "token_bucket",
			RequestsPerMinute: 60,
			BurstSize:         10,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
			Multiplier:     2.0,
		},
		Download: DownloadConfig{
			Timeout:       60 * time.Second,
			VerifyContent: true,
		},
		Layout: LayoutConfig{
			MinPadWidth: 4,
		},
		Storage: StorageConfig{
			StaleClaimAfter: 10 * time.Minute,
		},
		Manifest: ManifestConfig{
			Backend: "json",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from FLICKRBACKUP_* environment variables
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("FLICKRBACKUP_USERNAME"); v != "" {
		c.Flickr.Username = v
	}
	if v := os.Getenv("FLICKRBACKUP_API_KEY"); v != "" {
		c.Flickr.APIKey = v
	}
	if v := os.Getenv("FLICKRBACKUP_API_SECRET"); v != "" {
		c.Flickr.APISecret = v
	}
	if v := os.Getenv("FLICKRBACKUP_ACCOUNT"); v != "" {
		c.Flickr.Account = v
	}
	if v := os.Getenv("FLICKRBACKUP_ENDPOINT"); v != "" {
		c.Flickr.Endpoint = v
	}

	if v := os.Getenv("FLICKRBACKUP_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLICKRBACKUP_REQUESTS_PER_MINUTE: %w", err)
		}
		c.RateLimit.RequestsPerMinute = n
	}
	if v := os.Getenv("FLICKRBACKUP_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("FLICKRBACKUP_MAX_RETRIES: %w", err)
		}
		c.Retry.MaxAttempts = n
	}
	if v := os.Getenv("FLICKRBACKUP_DOWNLOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FLICKRBACKUP_DOWNLOAD_TIMEOUT: %w", err)
		}
		c.Download.Timeout = d
	}

	if v := os.Getenv("FLICKRBACKUP_MANIFEST"); v != "" {
		c.Manifest.Backend = v
	}
	if v := os.Getenv("FLICKRBACKUP_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("FLICKRBACKUP_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file. An empty path means
// "search the default locations"; finding nothing there is not an error.
func (c *Config) LoadFromFile(path string, root string) error {
	if path == "" {
		path = FindConfigFile(root)
		if path == "" {
			return nil
		}
	}

	if IsLegacyFile(path) {
		return c.loadLegacy(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	return nil
}

// FindConfigFile searches for a config file in standard locations, the
// destination root first. A legacy INI file in the root is used when it has
// no YAML config.
func FindConfigFile(root string) string {
	var locations []string
	if root != "" {
		locations = append(locations,
			filepath.Join(root, FileName),
			filepath.Join(root, "flickr-backup.yml"),
			filepath.Join(root, LegacyFileName),
		)
	}
	locations = append(locations,
		FileName,
		"flickr-backup.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "flickrbackup", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "flickrbackup", "config.yml"),
	)

	for _, loc := range locations {
		if info, err := os.Stat(loc); err == nil && !info.IsDir() {
			return loc
		}
	}

	return ""
}

// RequireCredentials checks that every credential field needed to talk to
// Flickr is present.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Flickr.Username) == "" {
		missing = append(missing, "flickr.username")
	}
	if strings.TrimSpace(c.Flickr.APIKey) == "" {
		missing = append(missing, "flickr.api_key")
	}
	if strings.TrimSpace(c.Flickr.APISecret) == "" {
		missing = append(missing, "flickr.api_secret")
	}
	if len(missing) > 0 {
		return errs.Configuration("config", "missing required field(s): "+strings.Join(missing, ", "))
	}
	return nil
}

// ValidateSettings checks everything except credentials
func (c *Config) ValidateSettings() error {
	var problems []error

	if c.Flickr.Endpoint == "" {
		problems = append(problems, errors.New("flickr.endpoint is required"))
	}
	if c.Flickr.PerPage <= 0 || c.Flickr.PerPage > 500 {
		problems = append(problems, errors.New("flickr.per_page must be between 1 and 500"))
	}

	switch strings.ToLower(c.RateLimit.Strategy) {
	case "token_bucket", "sliding_window":
	default:
		problems = append(problems, fmt.Errorf("unknown rate limit strategy %q", c.RateLimit.Strategy))
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		problems = append(problems, errors.New("requests per minute must be positive"))
	}
	if c.RateLimit.BurstSize <= 0 {
		problems = append(problems, errors.New("burst size must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		problems = append(problems, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.InitialBackoff < 0 || c.Retry.MaxBackoff < 0 {
		problems = append(problems, errors.New("retry backoff cannot be negative"))
	}
	if c.Retry.Multiplier < 1 {
		problems = append(problems, errors.New("retry.multiplier must be at least 1"))
	}

	if c.Download.Timeout <= 0 {
		problems = append(problems, errors.New("download timeout must be positive"))
	}
	if c.Layout.MinPadWidth < 1 || c.Layout.MinPadWidth > 12 {
		problems = append(problems, errors.New("layout.min_pad_width must be between 1 and 12"))
	}
	if c.Storage.StaleClaimAfter <= 0 {
		problems = append(problems, errors.New("storage.stale_claim_after must be positive"))
	}

	switch strings.ToLower(c.Manifest.Backend) {
	case "json", "badger", "none":
	default:
		problems = append(problems, fmt.Errorf("unknown manifest backend %q", c.Manifest.Backend))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		problems = append(problems, fmt.Errorf("invalid log level %q", c.Logging.Level))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		problems = append(problems, fmt.Errorf("invalid log format %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return &errs.Error{Kind: errs.KindConfiguration, Op: "config", Err: errors.Join(problems...)}
	}
	return nil
}

// Validate checks the settings and the credentials
func (c *Config) Validate() error {
	var problems []error
	if err := c.ValidateSettings(); err != nil {
		problems = append(problems, err)
	}
	if err := c.RequireCredentials(); err != nil {
		problems = append(problems, err)
	}
	return errors.Join(problems...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Zero values are treated as "not set".
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if account, ok := flags["account"].(string); ok && account != "" {
		c.Flickr.Account = account
	}
	if rpm, ok := flags["rate-limit"].(int); ok && rpm > 0 {
		c.RateLimit.RequestsPerMinute = rpm
	}
	if retries, ok := flags["max-retries"].(int); ok && retries > 0 {
		c.Retry.MaxAttempts = retries
	}
	if timeout, ok := flags["download-timeout"].(time.Duration); ok && timeout > 0 {
		c.Download.Timeout = timeout
	}
	if dryRun, ok := flags["dry-run"].(bool); ok && dryRun {
		c.Download.DryRun = true
	}
	if width, ok := flags["min-pad-width"].(int); ok && width > 0 {
		c.Layout.MinPadWidth = width
	}
	if backend, ok := flags["manifest"].(string); ok && backend != "" {
		c.Manifest.Backend = backend
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFormat, ok := flags["log-format"].(string); ok && logFormat != "" {
		c.Logging.Format = logFormat
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
//
// Credentials are not checked here; callers may still fill them from a
// stored account and must call RequireCredentials before contacting Flickr.
func Load(configPath, root string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".flickrbackup.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath, root); err != nil {
		return nil, errs.Configuration("config.load", err.Error())
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, errs.Configuration("config.env", err.Error())
	}

	config.MergeCommandLineFlags(flags)

	if err := config.ValidateSettings(); err != nil {
		return nil, err
	}

	return config, nil
}
