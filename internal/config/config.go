// ABOUTME: Configuration loading and parsing for coven-assistant
// ABOUTME: TOML file with ${VAR} expansion, duration parsing, defaults and validation

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Environment variables consulted by the loader.
const (
	EnvConfigPath  = "COVEN_ASSISTANT_CONFIG"
	EnvAPIKey      = "OPENAI_API_KEY"
	EnvAssistantID = "ASSISTANT_ID"

	// EnvOpenAIAssistantID is the older name for the assistant id variable,
	// still read when EnvAssistantID is unset.
	EnvOpenAIAssistantID = "OPENAI_ASSISTANT_ID"
)

// Config represents the complete coven-assistant configuration
type Config struct {
	Assistant AssistantConfig `toml:"assistant"`
	Matrix    MatrixConfig    `toml:"matrix"`
	Bridge    BridgeConfig    `toml:"bridge"`
	Status    StatusConfig    `toml:"status"`
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
}

// AssistantConfig holds the remote assistants service settings
type AssistantConfig struct {
	APIKey            string `toml:"api_key"`
	AssistantID       string `toml:"assistant_id"`
	BaseURL           string `toml:"base_url"`
	MaxPollAttempts   int    `toml:"max_poll_attempts"`
	VerifyCredentials bool   `toml:"verify_credentials"`

	RequestTimeout time.Duration `toml:"-"`
	PollInterval   time.Duration `toml:"-"`

	// Raw string values for TOML decoding
	RequestTimeoutRaw string `toml:"request_timeout"`
	PollIntervalRaw   string `toml:"poll_interval"`
}

// MatrixConfig holds homeserver credentials. Either access_token or
// username+password must be set.
type MatrixConfig struct {
	Homeserver  string `toml:"homeserver"`
	UserID      string `toml:"user_id"`
	AccessToken string `toml:"access_token"`
	Username    string `toml:"username"`
	Password    string `toml:"password"`
	RecoveryKey string `toml:"recovery_key"`
}

// BridgeConfig holds chat behaviour settings
type BridgeConfig struct {
	AllowedRooms    []string `toml:"allowed_rooms"`
	CommandPrefix   string   `toml:"command_prefix"`
	TypingIndicator bool     `toml:"typing_indicator"`
	PromptsFile     string   `toml:"prompts_file"`
}

// StatusConfig holds the status HTTP API settings
type StatusConfig struct {
	Enabled   bool            `toml:"enabled"`
	Addr      string          `toml:"addr"`
	JWTSecret string          `toml:"jwt_secret"`
	Tailscale TailscaleConfig `toml:"tailscale"`
}

// TailscaleConfig serves the status API on a tailnet through tsnet instead
// of status.addr.
type TailscaleConfig struct {
	Enabled   bool   `toml:"enabled"`
	Hostname  string `toml:"hostname"`
	AuthKey   string `toml:"auth_key"` // falls back to TS_AUTHKEY
	StateDir  string `toml:"state_dir"`
	Ephemeral bool   `toml:"ephemeral"`
	HTTPS     bool   `toml:"https"` // serve :443 with tailnet certs instead of :80
}

// DatabaseConfig holds the run ledger location
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Defaults returns a Config with every optional field filled in.
func Defaults() Config {
	return Config{
		Assistant: AssistantConfig{
			MaxPollAttempts:   30,
			VerifyCredentials: true,
			RequestTimeoutRaw: "30s",
			PollIntervalRaw:   "2s",
		},
		Bridge: BridgeConfig{
			CommandPrefix:   "!",
			TypingIndicator: true,
		},
		Status: StatusConfig{
			Addr: "127.0.0.1:8089",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(DataDir(), "assistant.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path on top of Defaults.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(string(data))
}

// Parse decodes TOML text on top of Defaults and validates the result.
func Parse(text string) (*Config, error) {
	cfg := Defaults()
	if _, err := toml.Decode(expandEnvVars(text), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// Credentials left out of the file come from the environment.
	if cfg.Assistant.APIKey == "" {
		cfg.Assistant.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.Assistant.AssistantID == "" {
		cfg.Assistant.AssistantID = os.Getenv(EnvAssistantID)
	}
	if cfg.Assistant.AssistantID == "" {
		cfg.Assistant.AssistantID = os.Getenv(EnvOpenAIAssistantID)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} with the variable's value, or "" if unset.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// Validate checks that required fields are present and valid.
// Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if c.Assistant.APIKey == "" {
		return fmt.Errorf("assistant.api_key is required")
	}
	if c.Assistant.AssistantID == "" {
		return fmt.Errorf("assistant.assistant_id is required")
	}
	if c.Assistant.BaseURL != "" {
		if err := validateHTTPURL("assistant.base_url", c.Assistant.BaseURL); err != nil {
			return err
		}
	}
	if c.Assistant.MaxPollAttempts < 1 {
		return fmt.Errorf("assistant.max_poll_attempts must be at least 1")
	}
	if c.Assistant.PollInterval <= 0 {
		return fmt.Errorf("assistant.poll_interval must be positive")
	}

	if c.Matrix.Homeserver == "" {
		return fmt.Errorf("matrix.homeserver is required")
	}
	if err := validateHTTPURL("matrix.homeserver", c.Matrix.Homeserver); err != nil {
		return err
	}
	if c.Matrix.AccessToken == "" && (c.Matrix.Username == "" || c.Matrix.Password == "") {
		return fmt.Errorf("matrix.access_token or matrix.username and matrix.password are required")
	}
	if c.Matrix.AccessToken != "" && c.Matrix.UserID == "" {
		return fmt.Errorf("matrix.user_id is required with matrix.access_token")
	}

	if c.Status.Enabled {
		// Server address is required unless Tailscale is enabled
		if c.Status.Addr == "" && !c.Status.Tailscale.Enabled {
			return fmt.Errorf("status.addr is required when status is enabled (or enable status.tailscale)")
		}
		if c.Status.Tailscale.Enabled && c.Status.Tailscale.Hostname == "" {
			return fmt.Errorf("status.tailscale.hostname is required when tailscale is enabled")
		}
		if len(c.Status.JWTSecret) < 32 {
			return fmt.Errorf("status.jwt_secret must be at least 32 bytes when status is enabled")
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Logging.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

func validateHTTPURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Assistant.RequestTimeoutRaw != "" {
		cfg.Assistant.RequestTimeout, err = time.ParseDuration(cfg.Assistant.RequestTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing request_timeout %q: %w", cfg.Assistant.RequestTimeoutRaw, err)
		}
	}

	if cfg.Assistant.PollIntervalRaw != "" {
		cfg.Assistant.PollInterval, err = time.ParseDuration(cfg.Assistant.PollIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing poll_interval %q: %w", cfg.Assistant.PollIntervalRaw, err)
		}
	}

	return nil
}

// DefaultPath returns the config file path.
// Priority: COVEN_ASSISTANT_CONFIG > XDG_CONFIG_HOME/coven/assistant.toml > ~/.config/coven/assistant.toml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "assistant.toml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "coven", "assistant.toml")
}

// DataDir returns the directory for the ledger and crypto store.
// Priority: XDG_DATA_HOME/coven > ~/.local/share/coven
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "coven")
}

// Redacted returns s with all but the last four characters masked.
func Redacted(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return strings.Repeat("*", len(s)-4) + s[len(s)-4:]
}
