package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"flickrbackup/pkg/config"
	errs "flickrbackup/pkg/errors"
	"flickrbackup/pkg/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage flickrbackup configuration files.

Configuration is merged from, highest priority first:
  - Command line flags
  - Environment variables (FLICKRBACKUP_*, .env files included)
  - Configuration file
  - Default values`,
}

var configInitCmd = &cobra.Command{
	Use:   "init [destination]",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file is written to --config when given, otherwise to
<destination>/flickr-backup.yaml, or ./flickr-backup.yaml without a
destination.

A flickr-downloader.config INI file next to it is still read when no YAML
config exists. Its username, api_key and api_secret are copied into the
new file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show [destination]",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. The API key and
secret are masked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [destination]",
	Short: "Validate the configuration",
	Long: `Load the configuration the way a backup would and report every
problem, missing credentials included.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

const exampleConfig = `# flickrbackup configuration
#
# Every value can also be set with an environment variable, for example
# FLICKRBACKUP_API_KEY or FLICKRBACKUP_REQUESTS_PER_MINUTE.

flickr:
  # all three are required
  username: ""
  api_key: ""
  api_secret: ""
  # name of an account stored with 'flickrbackup auth login'
  # account: personal
  endpoint: "https://api.flickr.com/services/rest/"
  per_page: 500

rate_limit:
  # token_bucket or sliding_window
  strategy: token_bucket
  requests_per_minute: 60
  burst_size: 10

retry:
  max_attempts: 3
  initial_backoff: 1s
  max_backoff: 30s
  multiplier: 2.0

download:
  # per photo
  timeout: 60s
  # refuse HTML or text served in place of a photo
  verify_content: true

layout:
  # files are named 0001-<id>.jpg; widens for larger albums
  min_pad_width: 4

storage:
  # a claim lock left by another host is taken over after this long;
  # locks of this host are freed as soon as their process is gone
  stale_claim_after: 10m

manifest:
  # json, badger or none
  backend: json
  # default: <destination>/.flickrbackup/manifest.json (or manifest.db)
  path: ""

logging:
  # debug, info, warn, error
  level: info
  # console or json
  format: console
  file: ""
`

func destinationArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		path = filepath.Join(destinationArg(args), config.FileName)
	}

	if _, err := os.Stat(path); err == nil {
		return errs.Configuration("config.init", fmt.Sprintf("%s already exists, remove it first to start over", path))
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errs.Filesystem("config.init", err)
	}
	content := exampleConfig
	legacy := filepath.Join(filepath.Dir(path), config.LegacyFileName)
	if _, err := os.Stat(legacy); err == nil {
		fc, err := config.LoadLegacy(legacy)
		if err != nil {
			return errs.Configuration("config.init", err.Error())
		}
		content = withCredentials(content, fc)
		ui.PrintInfo("Imported credentials from", legacy)
	}

	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return errs.Filesystem("config.init", err)
	}

	ui.PrintSuccess("Configuration file created: " + path)
	ui.Println("\nNext steps:")
	ui.Println("1. Fill in username, api_key and api_secret")
	ui.Println("2. Run 'flickrbackup config validate' to check it")
	ui.Println("3. Run 'flickrbackup <destination>' to start the backup")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, destinationArg(args), nil)
	if err != nil {
		return err
	}

	display := *cfg
	display.Flickr.APIKey = mask(display.Flickr.APIKey)
	display.Flickr.APISecret = mask(display.Flickr.APISecret)

	data, err := yaml.Marshal(&display)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	out := cmd.OutOrStdout()
	ui.PrintHighlight("Current configuration")
	fmt.Fprintln(out)
	fmt.Fprint(out, string(data))

	source := configFile
	if source == "" {
		source = config.FindConfigFile(destinationArg(args))
	}
	if source == "" {
		source = "(none found)"
	}
	fmt.Fprintf(out, "\nConfiguration file: %s\n", source)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, destinationArg(args), nil)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if dest := destinationArg(args); dest != "" {
		if _, err := checkDestination(dest); err != nil {
			return err
		}
	}

	ui.PrintSuccess("Configuration is valid")
	ui.PrintInfo("User", cfg.Flickr.Username)
	ui.PrintInfo("Rate limit", fmt.Sprintf("%d requests/minute (%s)", cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Strategy))
	ui.PrintInfo("Manifest", cfg.Manifest.Backend)
	return nil
}

// withCredentials fills the empty credential lines of the example config
func withCredentials(content string, fc config.FlickrConfig) string {
	for key, value := range map[string]string{
		"username":   fc.Username,
		"api_key":    fc.APIKey,
		"api_secret": fc.APISecret,
	} {
		if value != "" {
			content = strings.Replace(content, "  "+key+`: ""`, fmt.Sprintf("  %s: %q", key, value), 1)
		}
	}
	return content
}

// mask hides all but the ends of a secret
func mask(s string) string {
	switch {
	case s == "":
		return ""
	case len(s) > 8:
		return s[:4] + "..." + s[len(s)-4:]
	default:
		return "***"
	}
}
