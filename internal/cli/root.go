// Package cli provides the command-line interface for photoup.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rescale/photoup/internal/config"
	inthttp "github.com/rescale/photoup/internal/http"
	"github.com/rescale/photoup/internal/logging"
	"github.com/rescale/photoup/internal/version"
)

var (
	// Global flags
	cfgFile  string
	storeURL string
	apiToken string
	verbose  bool
	debug    bool

	// Global logger
	logger *logging.Logger

	// Global context for signal handling
	rootContext context.Context
	cancelFunc  context.CancelFunc
)

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "photoup",
		Short: "photoup - batch image uploader",
		Long: `photoup ` + version.String() + `
Encodes local images and uploads them to a photo store, several at a time,
with per-file progress and on-demand retry of failed uploads.

Stores:
  http   - the photo store's JSON API (default)
  s3     - an S3 bucket (or S3-compatible endpoint)
  azure  - an Azure blob container addressed by SAS URL`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = logging.NewDefaultCLILogger()
			if verbose || debug {
				logging.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Close()
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&storeURL, "store-url", "", "Store base URL (overrides config and "+config.EnvStoreURL+")")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", "", "Store API token (overrides config and "+config.EnvAPIToken+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output (shows debug messages)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug output (same as --verbose)")

	rootCmd.Version = version.String()

	rootCmd.AddCommand(newCompletionCmd(rootCmd))
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	return rootCmd
}

func newCompletionCmd(rootCmd *cobra.Command) *cobra.Command {
	completionCmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Enable tab-completion for photoup commands",
		Long: `Generate shell completion scripts to enable tab-completion for photoup.

QUICK START:

  zsh:
    mkdir -p ~/.zsh/completions
    photoup completion zsh > ~/.zsh/completions/_photoup
    # Then add to ~/.zshrc: fpath=(~/.zsh/completions $fpath)

  bash (Linux):
    photoup completion bash | sudo tee /etc/bash_completion.d/photoup

For detailed instructions, use: photoup completion [shell] --help`,
	}

	completionCmd.AddCommand(&cobra.Command{
		Use:   "bash",
		Short: "Generate bash completion script",
		Long: `Generate the autocompletion script for bash.

QUICK TEST (temporary, current session only):
  source <(photoup completion bash)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenBashCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "zsh",
		Short: "Generate zsh completion script",
		Long: `Generate the autocompletion script for zsh.

QUICK TEST (temporary, current session only):
  source <(photoup completion zsh)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenZshCompletion(cmd.OutOrStdout())
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "fish",
		Short: "Generate fish completion script",
		Long: `Generate the autocompletion script for fish.

  photoup completion fish > ~/.config/fish/completions/photoup.fish`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenFishCompletion(cmd.OutOrStdout(), true)
		},
	})

	completionCmd.AddCommand(&cobra.Command{
		Use:   "powershell",
		Short: "Generate PowerShell completion script",
		Long: `Generate the autocompletion script for PowerShell.

  photoup completion powershell >> $PROFILE`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootCmd.Root().GenPowerShellCompletion(cmd.OutOrStdout())
		},
	})

	return completionCmd
}

// Execute runs the CLI.
func Execute() error {
	rootContext, cancelFunc = context.WithCancel(context.Background())
	defer cancelFunc()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Items already in flight are abandoned with a network error; nothing
	// is retried on the way out.
	go func() {
		for sig := range sigChan {
			if sig != nil {
				fmt.Fprintf(os.Stderr, "\n\nReceived signal %v, cancelling uploads...\n", sig)
				cancelFunc()
			}
		}
	}()

	rootCmd := NewRootCmd()
	AddCommands(rootCmd)
	err := rootCmd.Execute()

	signal.Stop(sigChan)
	close(sigChan)

	return err
}

// AddCommands adds all subcommands to the root command.
func AddCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newEncodeCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newConfigCmd())
}

// GetLogger returns the global CLI logger.
func GetLogger() *logging.Logger {
	if logger == nil {
		logger = logging.NewDefaultCLILogger()
	}
	return logger
}

// GetContext returns the global CLI context with signal handling.
// This context will be cancelled when the user presses Ctrl+C.
func GetContext() context.Context {
	if rootContext == nil {
		return context.Background()
	}
	return rootContext
}

// loadConfig merges the config file, environment and global flags, in that
// order of precedence from lowest to highest, and validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyGlobalFlags(cfg)

	log := GetLogger()
	if !verbose && !debug {
		logging.SetGlobalLevel(logging.ParseLevel(cfg.Log.Level))
	}
	if path := config.ResolveLogFile(cfg.Log.File); path != "" {
		if err := config.EnsureConfigDirectory(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Log file disabled")
		} else {
			log.EnableFile(path)
		}
	}

	if inthttp.NeedsProxyPassword(cfg.Proxy) {
		password, err := promptSecret(os.Stderr, fmt.Sprintf("Proxy password for %s@%s: ", cfg.Proxy.User, cfg.Proxy.Host))
		if err != nil {
			return nil, fmt.Errorf("failed to read proxy password: %w", err)
		}
		cfg.Proxy.Password = password
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyGlobalFlags(cfg *config.Config) {
	if v := strings.TrimSpace(storeURL); v != "" {
		cfg.Store.BaseURL = v
	}
	if v := strings.TrimSpace(apiToken); v != "" {
		cfg.Store.APIToken = v
	}
}
