// ABOUTME: Entry point for coven-assistant, a Matrix bridge to a remote assistant
// ABOUTME: Cobra root command wiring serve, init, check and token

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coven-assistant/internal/config"
	"github.com/2389/coven-assistant/internal/conversation"
)

// Version is set at build time.
var version = "dev"

const banner = `
                                                _     _              _
  ___ _____   _____ _ __        __ _ ___ ___(_)___| |_ __ _ _ __ | |_
 / __/ _ \ \ / / _ \ '_ \ _____/ _' / __/ __| / __| __/ _' | '_ \| __|
| (_| (_) \ V /  __/ | | |_____| (_| \__ \__ \ \__ \ || (_| | | | | |_
 \___\___/ \_/ \___|_| |_|      \__,_|___/___/_|___/\__\__,_|_| |_|\__|
`

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "coven-assistant",
		Short:         "Matrix bridge to a remote assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		fmt.Sprintf("config file (default $%s or ~/.config/coven/assistant.toml)", config.EnvConfigPath))

	root.AddCommand(newServeCmd(), newInitCmd(), newCheckCmd(), newTokenCmd())
	return root
}

// resolveConfigPath returns --config if given, otherwise the default location.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

// loadConfig loads the config file; any failure is a configuration error.
func loadConfig() (*config.Config, string, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("%w: loading %s: %w", conversation.ErrConfig, path, err)
	}
	return cfg, path, nil
}

func printBanner() {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		red := color.New(color.FgRed, color.Bold)
		if errors.Is(err, conversation.ErrConfig) {
			red.Fprint(os.Stderr, "Configuration error: ")
		} else {
			red.Fprint(os.Stderr, "Error: ")
		}
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}
