// ABOUTME: init command: interactive writer for the TOML config file
// ABOUTME: Prompts for assistant and Matrix credentials and generates a status JWT secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-assistant/internal/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

// initAnswers are the values collected by init.
type initAnswers struct {
	APIKey        string
	AssistantID   string
	Homeserver    string
	Username      string
	Password      string
	RecoveryKey   string
	CommandPrefix string
	StatusEnabled bool
	StatusAddr    string
	JWTSecret     string
	DatabasePath  string
	LogLevel      string
	LogFormat     string
}

func runInit(in io.Reader, out io.Writer) error {
	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	cyan.Fprint(out, banner)
	fmt.Fprintln(out, "    Interactive Setup")
	fmt.Fprintln(out, "    -----------------")
	fmt.Fprintln(out)

	reader := bufio.NewReader(in)
	outputFile := prompt(reader, out, "Config file path", resolveConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		yellow.Fprintf(out, "    Config already exists at %s\n", outputFile)
		if !yes(prompt(reader, out, "Overwrite?", "no")) {
			fmt.Fprintln(out, "    Aborted.")
			return nil
		}
	}

	defaults := config.Defaults()
	var a initAnswers

	fmt.Fprintln(out, "\n--- Assistant ---")
	a.APIKey = prompt(reader, out, "API key (empty to use $"+config.EnvAPIKey+")", "")
	a.AssistantID = prompt(reader, out, "Assistant id (empty to use $"+config.EnvAssistantID+")", "")

	fmt.Fprintln(out, "\n--- Matrix ---")
	a.Homeserver = prompt(reader, out, "Homeserver URL", "https://matrix.org")
	a.Username = prompt(reader, out, "Username", "")
	a.Password = prompt(reader, out, "Password", "")
	a.RecoveryKey = prompt(reader, out, "Recovery key (optional, for E2EE)", "")
	a.CommandPrefix = prompt(reader, out, "Command prefix", defaults.Bridge.CommandPrefix)

	fmt.Fprintln(out, "\n--- Status API ---")
	a.StatusEnabled = yes(prompt(reader, out, "Enable status API?", "no"))
	if a.StatusEnabled {
		a.StatusAddr = prompt(reader, out, "Listen address", defaults.Status.Addr)
		secret, err := generateSecret()
		if err != nil {
			return err
		}
		a.JWTSecret = secret
	}

	fmt.Fprintln(out, "\n--- Storage and logging ---")
	a.DatabasePath = prompt(reader, out, "Run ledger path", defaults.Database.Path)
	a.LogLevel = prompt(reader, out, "Log level (debug/info/warn/error)", defaults.Logging.Level)
	a.LogFormat = prompt(reader, out, "Log format (text/json)", defaults.Logging.Format)

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// Credentials inside, so owner-only.
	if err := os.WriteFile(outputFile, []byte(renderConfig(a)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintln(out)
	green.Fprintf(out, "    ✓ Config written to %s\n", outputFile)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "    Next steps:")
	fmt.Fprintln(out, "    1. Run: coven-assistant check")
	fmt.Fprintln(out, "    2. Run: coven-assistant serve")
	fmt.Fprintln(out)
	return nil
}

// renderConfig produces the TOML text for a.
func renderConfig(a initAnswers) string {
	var b strings.Builder
	b.WriteString("# coven-assistant configuration\n")
	b.WriteString("# Generated by coven-assistant init\n\n")

	b.WriteString("[assistant]\n")
	writeKey(&b, "api_key", orEnv(a.APIKey, config.EnvAPIKey))
	writeKey(&b, "assistant_id", orEnv(a.AssistantID, config.EnvAssistantID))
	b.WriteString("poll_interval = \"2s\"\n")
	b.WriteString("max_poll_attempts = 30\n\n")

	b.WriteString("[matrix]\n")
	writeKey(&b, "homeserver", a.Homeserver)
	writeKey(&b, "username", a.Username)
	writeKey(&b, "password", a.Password)
	if a.RecoveryKey != "" {
		writeKey(&b, "recovery_key", a.RecoveryKey)
	}
	b.WriteString("\n")

	b.WriteString("[bridge]\n")
	b.WriteString("# Only respond in these rooms (empty = all joined rooms)\n")
	b.WriteString("allowed_rooms = []\n")
	writeKey(&b, "command_prefix", a.CommandPrefix)
	b.WriteString("typing_indicator = true\n\n")

	b.WriteString("[status]\n")
	fmt.Fprintf(&b, "enabled = %t\n", a.StatusEnabled)
	if a.StatusEnabled {
		writeKey(&b, "addr", a.StatusAddr)
		writeKey(&b, "jwt_secret", a.JWTSecret)
	}
	b.WriteString("\n")

	b.WriteString("[database]\n")
	writeKey(&b, "path", a.DatabasePath)
	b.WriteString("\n")

	b.WriteString("[logging]\n")
	writeKey(&b, "level", a.LogLevel)
	writeKey(&b, "format", a.LogFormat)
	return b.String()
}

// orEnv returns v, or a ${name} reference when v is empty.
func orEnv(v, name string) string {
	if v != "" {
		return v
	}
	return "${" + name + "}"
}

func writeKey(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, "%s = %s\n", key, strconv.Quote(value))
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating jwt secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func yes(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "y" || s == "yes"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}
