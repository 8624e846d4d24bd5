// ABOUTME: check and token commands: validate configuration and issue status API tokens
// ABOUTME: check also verifies the assistants API key and the prompts file

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-assistant/internal/assistant"
	"github.com/2389/coven-assistant/internal/auth"
	"github.com/2389/coven-assistant/internal/config"
	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/prompts"
)

func newCheckCmd() *cobra.Command {
	var offline bool
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate the config and verify the assistants credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			green := color.New(color.FgGreen)

			cfg, path, err := loadConfig()
			if err != nil {
				return err
			}
			green.Fprint(out, "✓ ")
			fmt.Fprintf(out, "config %s\n", path)
			printConfigSummary(out, cfg)

			p, err := prompts.Load(cfg.Bridge.PromptsFile)
			if err != nil {
				return fmt.Errorf("%w: %w", conversation.ErrConfig, err)
			}
			green.Fprint(out, "✓ ")
			fmt.Fprintf(out, "prompts (%d keyboard buttons)\n", len(p.Keyboard))

			if offline {
				return nil
			}
			client := assistant.NewClient(assistant.Config{
				APIKey:  cfg.Assistant.APIKey,
				BaseURL: cfg.Assistant.BaseURL,
				Timeout: cfg.Assistant.RequestTimeout,
			}, setupLogger(config.LoggingConfig{Level: "warn"}))
			if err := verifyCredentials(cmd.Context(), client); err != nil {
				return err
			}
			green.Fprint(out, "✓ ")
			fmt.Fprintln(out, "assistants credentials accepted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&offline, "offline", false, "skip the remote credential check")
	return cmd
}

func printConfigSummary(out io.Writer, cfg *config.Config) {
	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "  api key:      %s\n", config.Redacted(cfg.Assistant.APIKey))
	gray.Fprintf(out, "  assistant id: %s\n", cfg.Assistant.AssistantID)
	gray.Fprintf(out, "  polling:      %d x %s\n", cfg.Assistant.MaxPollAttempts, cfg.Assistant.PollInterval)
	gray.Fprintf(out, "  homeserver:   %s\n", cfg.Matrix.Homeserver)
	gray.Fprintf(out, "  ledger:       %s\n", cfg.Database.Path)
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for the status API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := issueToken(cfg.Status, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "ops", "token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func issueToken(status config.StatusConfig, subject string, ttl time.Duration) (string, error) {
	if status.JWTSecret == "" {
		return "", fmt.Errorf("%w: status.jwt_secret is not set", conversation.ErrConfig)
	}
	if ttl <= 0 {
		return "", fmt.Errorf("ttl must be positive")
	}
	verifier, err := auth.NewJWTVerifier([]byte(status.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("%w: %w", conversation.ErrConfig, err)
	}
	token, err := verifier.Generate(subject, ttl)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}
