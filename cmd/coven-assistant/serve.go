// ABOUTME: serve command: builds the assistant client, ledger, service and bridge
// ABOUTME: Runs the Matrix sync loop and the optional status API under one errgroup

package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/2389/coven-assistant/internal/assistant"
	"github.com/2389/coven-assistant/internal/auth"
	"github.com/2389/coven-assistant/internal/bridge"
	"github.com/2389/coven-assistant/internal/config"
	"github.com/2389/coven-assistant/internal/conversation"
	"github.com/2389/coven-assistant/internal/prompts"
	"github.com/2389/coven-assistant/internal/statusapi"
	"github.com/2389/coven-assistant/internal/store"
)

// verifyTimeout bounds the startup credential check.
const verifyTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	printBanner()

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	p, err := prompts.Load(cfg.Bridge.PromptsFile)
	if err != nil {
		return fmt.Errorf("%w: %w", conversation.ErrConfig, err)
	}

	printStartup(cfg, path)

	client := assistant.NewClient(assistant.Config{
		APIKey:  cfg.Assistant.APIKey,
		BaseURL: cfg.Assistant.BaseURL,
		Timeout: cfg.Assistant.RequestTimeout,
	}, logger)

	if cfg.Assistant.VerifyCredentials {
		if err := verifyCredentials(ctx, client); err != nil {
			return err
		}
		logger.Info("assistants credentials verified")
	}

	ledger, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("opening run ledger: %w", err)
	}
	defer ledger.Close()

	feed := conversation.NewRunFeed(logger)
	defer feed.Close()

	svc := conversation.NewService(client, conversation.Config{
		AssistantID:     cfg.Assistant.AssistantID,
		ExplainPrompt:   p.Explain,
		DegradedMessage: p.DegradedReply,
		Poll: conversation.PollPolicy{
			Interval:    cfg.Assistant.PollInterval,
			MaxAttempts: cfg.Assistant.MaxPollAttempts,
		},
	}, conversation.Recorders{ledger, feed}, logger)

	br, err := bridge.NewBridge(cfg.Matrix, cfg.Bridge, svc, p, logger)
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	defer br.Close()

	if err := br.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	if cfg.Matrix.RecoveryKey != "" {
		if err := br.EnableEncryption(ctx, config.DataDir()); err != nil {
			return fmt.Errorf("setting up encryption: %w", err)
		}
	} else {
		logger.Info("encryption disabled (no recovery key)")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return br.Run(gctx)
	})

	if cfg.Status.Enabled {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.Status.JWTSecret))
		if err != nil {
			return fmt.Errorf("%w: %w", conversation.ErrConfig, err)
		}
		srv, err := statusapi.New(statusapi.Config{
			Addr:     cfg.Status.Addr,
			Verifier: verifier,
			Sessions: svc.Sessions(),
			Runs:     ledger,
			Feed:     feed,
			Tailnet:  tailnetConfig(cfg.Status.Tailscale),
			Logger:   logger,
		})
		if err != nil {
			return fmt.Errorf("creating status API: %w", err)
		}
		g.Go(func() error {
			return srv.Run(gctx)
		})
	}

	logger.Info("coven-assistant running", "user_id", br.UserID(), "assistant_id", cfg.Assistant.AssistantID)
	return g.Wait()
}

// tailnetConfig returns nil unless the status API should run on a tailnet.
func tailnetConfig(ts config.TailscaleConfig) *statusapi.TailnetConfig {
	if !ts.Enabled {
		return nil
	}
	stateDir := ts.StateDir
	if stateDir == "" {
		stateDir = filepath.Join(config.DataDir(), "tailscale")
	}
	return &statusapi.TailnetConfig{
		Hostname:  ts.Hostname,
		AuthKey:   ts.AuthKey,
		StateDir:  stateDir,
		Ephemeral: ts.Ephemeral,
		HTTPS:     ts.HTTPS,
	}
}

// verifyCredentials checks the API key with one cheap call. A rejection is
// a configuration error.
func verifyCredentials(ctx context.Context, client *assistant.Client) error {
	verifyCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()
	if err := client.VerifyCredentials(verifyCtx); err != nil {
		return fmt.Errorf("%w: verifying assistants credentials: %w", conversation.ErrConfig, err)
	}
	return nil
}

func printStartup(cfg *config.Config, path string) {
	green := color.New(color.FgGreen)
	gray := color.New(color.FgHiBlack)

	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Assistant:  %s\n", cfg.Assistant.AssistantID)
	green.Print("    ▶ ")
	fmt.Printf("Polling:    %d x %s\n", cfg.Assistant.MaxPollAttempts, cfg.Assistant.PollInterval)
	green.Print("    ▶ ")
	fmt.Printf("Ledger:     %s\n", cfg.Database.Path)
	if cfg.Status.Enabled {
		green.Print("    ▶ ")
		if cfg.Status.Tailscale.Enabled {
			fmt.Printf("Status API: tailnet host %s\n", cfg.Status.Tailscale.Hostname)
		} else {
			fmt.Printf("Status API: http://%s\n", cfg.Status.Addr)
		}
	}
	if cfg.Matrix.RecoveryKey != "" {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	} else {
		gray.Println("    ▷ Encryption: disabled")
	}
	fmt.Println()
}
