// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers TOML loading, defaults, env var expansion, durations and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
[assistant]
api_key = "sk-test"
assistant_id = "asst_123"

[matrix]
homeserver = "https://matrix.example.org"
username = "bot"
password = "secret"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "assistant.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
[assistant]
api_key = "sk-test"
assistant_id = "asst_123"
base_url = "https://proxy.example.org/v1"
request_timeout = "45s"
poll_interval = "500ms"
max_poll_attempts = 12
verify_credentials = false

[matrix]
homeserver = "https://matrix.example.org"
user_id = "@bot:example.org"
access_token = "syt_token"
recovery_key = "EsT1 abcd"

[bridge]
allowed_rooms = ["!a:example.org", "!b:example.org"]
command_prefix = "/"
typing_indicator = false
prompts_file = "/etc/coven/prompts.yaml"

[status]
enabled = true
addr = "0.0.0.0:9000"
jwt_secret = "0123456789abcdef0123456789abcdef"

[database]
path = "/tmp/ledger.db"

[logging]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test", cfg.Assistant.APIKey)
	assert.Equal(t, "asst_123", cfg.Assistant.AssistantID)
	assert.Equal(t, "https://proxy.example.org/v1", cfg.Assistant.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Assistant.RequestTimeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Assistant.PollInterval)
	assert.Equal(t, 12, cfg.Assistant.MaxPollAttempts)
	assert.False(t, cfg.Assistant.VerifyCredentials)

	assert.Equal(t, "@bot:example.org", cfg.Matrix.UserID)
	assert.Equal(t, "syt_token", cfg.Matrix.AccessToken)
	assert.Equal(t, "EsT1 abcd", cfg.Matrix.RecoveryKey)

	assert.Equal(t, []string{"!a:example.org", "!b:example.org"}, cfg.Bridge.AllowedRooms)
	assert.Equal(t, "/", cfg.Bridge.CommandPrefix)
	assert.False(t, cfg.Bridge.TypingIndicator)
	assert.Equal(t, "/etc/coven/prompts.yaml", cfg.Bridge.PromptsFile)

	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, "0.0.0.0:9000", cfg.Status.Addr)
	assert.Equal(t, "/tmp/ledger.db", cfg.Database.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Assistant.RequestTimeout)
	assert.Equal(t, 2*time.Second, cfg.Assistant.PollInterval)
	assert.Equal(t, 30, cfg.Assistant.MaxPollAttempts)
	assert.True(t, cfg.Assistant.VerifyCredentials)
	assert.Empty(t, cfg.Assistant.BaseURL)
	assert.Equal(t, "!", cfg.Bridge.CommandPrefix)
	assert.True(t, cfg.Bridge.TypingIndicator)
	assert.False(t, cfg.Status.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.True(t, strings.HasSuffix(cfg.Database.Path, filepath.Join("coven", "assistant.db")))
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_ASSISTANT_KEY", "sk-from-env")
	t.Setenv("TEST_MATRIX_PASSWORD", "hunter2")

	cfg, err := Load(writeConfig(t, `
[assistant]
api_key = "${TEST_ASSISTANT_KEY}"
assistant_id = "asst_123"

[matrix]
homeserver = "https://matrix.example.org"
username = "bot"
password = "${TEST_MATRIX_PASSWORD}"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-from-env", cfg.Assistant.APIKey)
	assert.Equal(t, "hunter2", cfg.Matrix.Password)
}

func TestLoad_CredentialsFromEnvironment(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	t.Setenv(EnvAssistantID, "asst_env")

	cfg, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
username = "bot"
password = "secret"
`))
	require.NoError(t, err)
	assert.Equal(t, "sk-env", cfg.Assistant.APIKey)
	assert.Equal(t, "asst_env", cfg.Assistant.AssistantID)
}

func TestLoad_OlderAssistantIDVariable(t *testing.T) {
	t.Setenv(EnvAPIKey, "sk-env")
	t.Setenv(EnvAssistantID, "")
	t.Setenv(EnvOpenAIAssistantID, "asst_dotenv")

	cfg, err := Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
username = "bot"
password = "secret"
`))
	require.NoError(t, err)
	assert.Equal(t, "asst_dotenv", cfg.Assistant.AssistantID)

	t.Setenv(EnvAssistantID, "asst_new")
	cfg, err = Load(writeConfig(t, `
[matrix]
homeserver = "https://matrix.example.org"
username = "bot"
password = "secret"
`))
	require.NoError(t, err)
	assert.Equal(t, "asst_new", cfg.Assistant.AssistantID, "ASSISTANT_ID wins when both are set")
}

func TestLoad_StatusTailscale(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig+`
[status]
enabled = true
addr = ""
jwt_secret = "0123456789abcdef0123456789abcdef"

[status.tailscale]
enabled = true
hostname = "coven-assistant"
state_dir = "/var/lib/coven/ts"
ephemeral = true
https = true
`))
	require.NoError(t, err)
	ts := cfg.Status.Tailscale
	assert.True(t, ts.Enabled)
	assert.Equal(t, "coven-assistant", ts.Hostname)
	assert.Equal(t, "/var/lib/coven/ts", ts.StateDir)
	assert.True(t, ts.Ephemeral)
	assert.True(t, ts.HTTPS)
}

func TestLoad_UnsetVarBecomesEmpty(t *testing.T) {
	t.Setenv(EnvAPIKey, "")
	os.Unsetenv("TEST_DEFINITELY_UNSET_KEY")

	_, err := Load(writeConfig(t, strings.Replace(minimalConfig, `"sk-test"`, `"${TEST_DEFINITELY_UNSET_KEY}"`, 1)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assistant.api_key is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidTOML(t *testing.T) {
	_, err := Load(writeConfig(t, "[assistant\napi_key = "))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config")
}

func TestLoad_InvalidDuration(t *testing.T) {
	bad := strings.Replace(minimalConfig, `assistant_id = "asst_123"`, "assistant_id = \"asst_123\"\npoll_interval = \"soon\"", 1)

	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `parsing poll_interval "soon"`)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Assistant.APIKey = "sk"
		cfg.Assistant.AssistantID = "asst"
		cfg.Assistant.PollInterval = 2 * time.Second
		cfg.Matrix.Homeserver = "https://matrix.example.org"
		cfg.Matrix.Username = "bot"
		cfg.Matrix.Password = "pw"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api key", func(c *Config) { c.Assistant.APIKey = "" }, "assistant.api_key is required"},
		{"missing assistant id", func(c *Config) { c.Assistant.AssistantID = "" }, "assistant.assistant_id is required"},
		{"bad base url scheme", func(c *Config) { c.Assistant.BaseURL = "ftp://x" }, "assistant.base_url must use http or https"},
		{"zero attempts", func(c *Config) { c.Assistant.MaxPollAttempts = 0 }, "max_poll_attempts"},
		{"zero interval", func(c *Config) { c.Assistant.PollInterval = 0 }, "poll_interval must be positive"},
		{"missing homeserver", func(c *Config) { c.Matrix.Homeserver = "" }, "matrix.homeserver is required"},
		{"no matrix credentials", func(c *Config) { c.Matrix.Password = "" }, "matrix.access_token or"},
		{"token without user id", func(c *Config) {
			c.Matrix.Username, c.Matrix.Password = "", ""
			c.Matrix.AccessToken = "syt"
		}, "matrix.user_id is required"},
		{"token with user id", func(c *Config) {
			c.Matrix.Username, c.Matrix.Password = "", ""
			c.Matrix.AccessToken = "syt"
			c.Matrix.UserID = "@bot:example.org"
		}, ""},
		{"status short secret", func(c *Config) {
			c.Status.Enabled = true
			c.Status.JWTSecret = "short"
		}, "status.jwt_secret must be at least 32 bytes"},
		{"status without addr", func(c *Config) {
			c.Status.Enabled = true
			c.Status.Addr = ""
		}, "status.addr is required"},
		{"status on tailnet without addr", func(c *Config) {
			c.Status.Enabled = true
			c.Status.Addr = ""
			c.Status.JWTSecret = strings.Repeat("s", 32)
			c.Status.Tailscale = TailscaleConfig{Enabled: true, Hostname: "assistant"}
		}, ""},
		{"tailscale without hostname", func(c *Config) {
			c.Status.Enabled = true
			c.Status.JWTSecret = strings.Repeat("s", 32)
			c.Status.Tailscale.Enabled = true
		}, "status.tailscale.hostname is required"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path is required"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_A", "alpha")
	t.Setenv("TEST_B", "beta")

	assert.Equal(t, "alpha-beta", expandEnvVars("${TEST_A}-${TEST_B}"))
	assert.Equal(t, "no vars here", expandEnvVars("no vars here"))
	assert.Equal(t, "$TEST_A stays", expandEnvVars("$TEST_A stays"))
	assert.Equal(t, "x  y", expandEnvVars("x ${TEST_UNSET_FOR_SURE} y"))
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/coven/custom.toml")
	assert.Equal(t, "/etc/coven/custom.toml", DefaultPath())

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	assert.Equal(t, filepath.Join("/xdg", "coven", "assistant.toml"), DefaultPath())
}

func TestDataDir(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/xdgdata")
	assert.Equal(t, filepath.Join("/xdgdata", "coven"), DataDir())
}

func TestRedacted(t *testing.T) {
	assert.Equal(t, "***", Redacted("abc"))
	assert.Equal(t, "*******4567", Redacted("sk-01234567"))
}
