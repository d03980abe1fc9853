package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rescale/photoup/internal/config"
	"github.com/rescale/photoup/internal/constants"
	"github.com/rescale/photoup/internal/store/backends"
	"github.com/rescale/photoup/internal/store/httpstore"
	ustrings "github.com/rescale/photoup/internal/util/strings"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage photoup configuration",
		Long: `Configuration management commands for photoup.

Commands:
  init  - Interactive configuration setup
  show  - Display current configuration
  test  - Test the store connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigInitCmd())
	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())

	return configCmd
}

// configPath returns --config or the default location.
func configPath() (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	return config.DefaultConfigPath()
}

// newConfigInitCmd creates the 'config init' command.
func newConfigInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long: `Interactive configuration setup for photoup.

The configuration will be saved to ~/.config/photoup/config

Use --force to overwrite existing configuration.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			if !force {
				if _, err := os.Stat(path); err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Configuration already exists at: %s\n", path)
					fmt.Fprintln(cmd.OutOrStdout(), "Use --force to overwrite or run 'config show' to view current config.")
					return nil
				}
			}

			p := newPrompter(os.Stdin, cmd.OutOrStdout())
			cfg, err := runConfigInit(p, cmd.OutOrStdout())
			if err != nil {
				return err
			}

			if err := config.Save(cfg, path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			GetLogger().Info().Str("path", path).Msg("Configuration saved")

			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Configuration saved to: %s\n", path)
			fmt.Fprintln(cmd.OutOrStdout(), "Test your configuration with: photoup config test")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite existing configuration")

	return cmd
}

// runConfigInit asks for the settings of one backend and returns a config
// built on the defaults.
func runConfigInit(p *prompter, out io.Writer) (*config.Config, error) {
	cfg := config.New()

	fmt.Fprintln(out, "photoup Configuration Setup")
	fmt.Fprintln(out, "===========================")
	fmt.Fprintln(out)

	for {
		backend, err := p.promptString("Store backend (http, s3, azure)", config.BackendHTTP)
		if err != nil {
			return nil, err
		}
		cfg.Store.Backend = strings.ToLower(backend)
		if cfg.Store.Backend == config.BackendHTTP || cfg.Store.Backend == config.BackendS3 || cfg.Store.Backend == config.BackendAzure {
			break
		}
		fmt.Fprintln(out, "  Error: backend must be http, s3 or azure")
	}

	var err error
	switch cfg.Store.Backend {
	case config.BackendHTTP:
		if cfg.Store.BaseURL, err = p.promptString("Store URL", cfg.Store.BaseURL); err != nil {
			return nil, err
		}
		if cfg.Store.APIToken, err = p.promptString("API token (optional)", ""); err != nil {
			return nil, err
		}
	case config.BackendS3:
		for cfg.S3.Bucket == "" {
			if cfg.S3.Bucket, err = p.promptString("Bucket (required)", ""); err != nil {
				return nil, err
			}
		}
		if cfg.S3.Region, err = p.promptString("Region", "us-east-1"); err != nil {
			return nil, err
		}
		if cfg.S3.Prefix, err = p.promptString("Key prefix (optional)", ""); err != nil {
			return nil, err
		}
		if cfg.S3.Endpoint, err = p.promptString("Custom endpoint (optional)", ""); err != nil {
			return nil, err
		}
	case config.BackendAzure:
		for cfg.Azure.ContainerURL == "" {
			if cfg.Azure.ContainerURL, err = p.promptString("Container SAS URL (required)", ""); err != nil {
				return nil, err
			}
		}
		if cfg.Azure.Prefix, err = p.promptString("Blob prefix (optional)", ""); err != nil {
			return nil, err
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Upload Settings (press Enter for defaults)")
	fmt.Fprintln(out, "------------------------------------------")
	if cfg.Upload.Concurrency, err = p.promptInt("Concurrent uploads", cfg.Upload.Concurrency,
		constants.MinMaxConcurrent, constants.MaxMaxConcurrent); err != nil {
		return nil, err
	}

	fmt.Fprintln(out)
	if cfg.Notify.Enabled, err = p.promptYesNo("Show desktop notifications when a batch finishes?"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current configuration settings.

This command shows the merged configuration from:
  1. Configuration file (~/.config/photoup/config)
  2. Environment variables (` + config.EnvStoreURL + `, ` + config.EnvAPIToken + `, ` + config.EnvConcurrency + `)
  3. Command-line flags (--store-url, --api-token)

Priority: flags > environment > config file > defaults`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}

			cfg, err := config.Load(path)
			if err != nil {
				return err
			}
			applyGlobalFlags(cfg)

			writeConfigSummary(cmd.OutOrStdout(), cfg)

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration file: %s\n", path)
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintln(cmd.OutOrStdout(), "  (file does not exist - using defaults)")
			}
			if err := cfg.Validate(); err != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "  Warning: %v\n", err)
			}
			return nil
		},
	}

	return cmd
}

// writeConfigSummary prints cfg with secrets masked.
func writeConfigSummary(w io.Writer, cfg *config.Config) {
	fmt.Fprintln(w, "Current Configuration")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Store Settings:")
	fmt.Fprintf(w, "  Backend:   %s\n", cfg.BackendName())
	switch cfg.BackendName() {
	case config.BackendS3:
		fmt.Fprintf(w, "  Bucket:    %s\n", cfg.S3.Bucket)
		fmt.Fprintf(w, "  Region:    %s\n", cfg.S3.Region)
		if cfg.S3.Prefix != "" {
			fmt.Fprintf(w, "  Prefix:    %s\n", cfg.S3.Prefix)
		}
		if cfg.S3.Endpoint != "" {
			fmt.Fprintf(w, "  Endpoint:  %s\n", cfg.S3.Endpoint)
		}
		fmt.Fprintf(w, "  Keys:      %s\n", maskSecret(cfg.S3.SecretAccessKey))
	case config.BackendAzure:
		fmt.Fprintf(w, "  Container: %s\n", stripSAS(cfg.Azure.ContainerURL))
		if cfg.Azure.Prefix != "" {
			fmt.Fprintf(w, "  Prefix:    %s\n", cfg.Azure.Prefix)
		}
	default:
		fmt.Fprintf(w, "  Store URL: %s\n", cfg.Store.BaseURL)
		fmt.Fprintf(w, "  API Token: %s\n", maskSecret(cfg.Store.APIToken))
	}
	fmt.Fprintf(w, "  Timeout:   %s\n", cfg.Timeout())
	if cfg.Store.RatePerSecond > 0 {
		fmt.Fprintf(w, "  Rate:      %.1f req/s\n", cfg.Store.RatePerSecond)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Upload Settings:")
	fmt.Fprintf(w, "  Concurrency: %d\n", cfg.Upload.Concurrency)
	fmt.Fprintf(w, "  Chunk Size:  %d KiB\n", cfg.Upload.ChunkSizeKB)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Proxy Settings:")
	fmt.Fprintf(w, "  Proxy Mode: %s\n", cfg.Proxy.Mode)
	if cfg.Proxy.Host != "" {
		fmt.Fprintf(w, "  Proxy Host: %s\n", cfg.Proxy.Host)
		fmt.Fprintf(w, "  Proxy Port: %d\n", cfg.Proxy.Port)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Advanced Settings:")
	fmt.Fprintf(w, "  Log Level:     %s\n", cfg.Log.Level)
	if cfg.Log.File != "" {
		fmt.Fprintf(w, "  Log File:      %s\n", config.ResolveLogFile(cfg.Log.File))
	}
	fmt.Fprintf(w, "  Notifications: %v\n", cfg.Notify.Enabled)
	fmt.Fprintln(w)
}

// Never display any portion of a secret.
func maskSecret(s string) string {
	if s == "" {
		return "<not set>"
	}
	return fmt.Sprintf("<set (%d chars)>", len(s))
}

func stripSAS(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i] + "?<sas>"
	}
	return raw
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "test",
		Short: "Test the store connection",
		Long: `Test the store connection with the current configuration.

For the http backend this lists photos; for s3 and azure it builds the
client, which checks credentials and addresses without writing anything.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Fprintln(out, "Testing Store Connection")
			fmt.Fprintln(out, "========================")
			fmt.Fprintf(out, "Backend: %s\n\n", cfg.BackendName())

			ctx, cancel := context.WithTimeout(GetContext(), 10*time.Second)
			defer cancel()

			if cfg.BackendName() != config.BackendHTTP {
				if _, err := backends.New(ctx, cfg, logger); err != nil {
					fmt.Fprintln(out, "✗ Client setup FAILED")
					return err
				}
				fmt.Fprintln(out, "✓ Client created")
				return nil
			}

			client, err := httpstore.New(cfg, nil, logger)
			if err != nil {
				return err
			}
			photos, err := client.List(ctx, "")
			if err != nil {
				logger.Error().Err(err).Msg("Connection test failed")
				fmt.Fprintln(out, "✗ Connection FAILED")
				fmt.Fprintf(out, "  Error: %v\n", err)
				return fmt.Errorf("connection test failed")
			}

			logger.Info().Msg("Connection test successful")
			fmt.Fprintln(out, "✓ Connection SUCCESSFUL")
			fmt.Fprintf(out, "  %s holds %s\n", cfg.Store.BaseURL, ustrings.Count(len(photos), "photo"))
			return nil
		},
	}

	return cmd
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Long:  `Display the path to the configuration file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path, err := configPath()
			if err != nil {
				return err
			}
			if cfgFile == "" {
				fmt.Fprintln(out, "Default configuration path:")
			} else {
				fmt.Fprintln(out, "Configuration path (from --config flag):")
			}
			fmt.Fprintf(out, "  %s\n\n", path)

			if info, err := os.Stat(path); err == nil {
				fmt.Fprintln(out, "Status: ✓ File exists")
				fmt.Fprintf(out, "Size:   %d bytes\n", info.Size())
				fmt.Fprintf(out, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
			} else {
				fmt.Fprintln(out, "Status: File does not exist")
				fmt.Fprintln(out)
				fmt.Fprintln(out, "Create a configuration file with: photoup config init")
			}
			return nil
		},
	}

	return cmd
}
