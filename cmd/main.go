package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ochronus/gomonsterapi/internal/app"
	"github.com/ochronus/gomonsterapi/internal/config"
	"github.com/ochronus/gomonsterapi/internal/http"
	"github.com/ochronus/gomonsterapi/internal/models"
	"github.com/ochronus/gomonsterapi/internal/render"
	"github.com/ochronus/gomonsterapi/internal/utils"
	"github.com/spf13/cobra"
)

const version = "0.1.0"

var (
	configPath   string
	outputFormat string
)

func main() {
	// Get default config path
	defaultConfigPath, err := config.DefaultConfigPath()
	if err != nil {
		defaultConfigPath = "./config.toml"
	}

	// Root command
	rootCmd := &cobra.Command{
		Use:          "gomonsterapi",
		Short:        "MonsterAPI command line client",
		Long:         "Submit generation jobs to MonsterAPI, wait for their results and upload input files. Can also run a local REST gateway for other tools.",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json or yaml")

	rootCmd.AddCommand(newSubmitCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newWaitCmd())
	rootCmd.AddCommand(newGenerateCmd())
	rootCmd.AddCommand(newUploadCmd())
	rootCmd.AddCommand(newUploadInputCmd())
	rootCmd.AddCommand(newBatchCmd())

	// Models command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "models",
		Short: "List the models with known parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := newPrinter(cmd)
			if err != nil {
				return err
			}
			return p.Models(models.All())
		},
	})

	// Serve command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the local REST gateway",
		Args:  cobra.NoArgs,
		RunE:  runServer,
	})

	// Generate-config command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "generate-config",
		Short: "Generate config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			apiKey := os.Getenv(config.APIKeyEnv)
			if apiKey == "" {
				key, err := utils.ReadAPIKey(os.Stdin, cmd.ErrOrStderr())
				if err != nil {
					return err
				}
				apiKey = key
			}
			return utils.GenerateConfig(configPath, apiKey)
		},
	})

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("gomonsterapi version %s\n", version)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// loadContainer loads and validates the configuration and builds the
// shared dependencies.
func loadContainer() (*app.Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	container, err := app.NewContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build container: %w", err)
	}
	return container, nil
}

func newPrinter(cmd *cobra.Command) (*render.Printer, error) {
	format, err := render.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return render.NewPrinter(cmd.OutOrStdout(), format), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	container, err := loadContainer()
	if err != nil {
		return err
	}

	container.Logger.Infof("Starting gomonsterapi gateway, version %s", version)

	server := http.NewServer(container)
	return server.StartWithContext(cmd.Context())
}
