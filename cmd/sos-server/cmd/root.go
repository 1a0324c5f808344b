package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/oshokin/sos-engine/internal/config"
	"github.com/oshokin/sos-engine/internal/logger"
	"github.com/oshokin/sos-engine/internal/service/server"
	"github.com/oshokin/sos-engine/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// grpcAddress overrides the configured gRPC listen address.
	grpcAddress string
	// httpAddress overrides the configured HTTP listen address.
	httpAddress string

	// rootCmd represents the base command for running the emergency alert server.
	rootCmd = &cobra.Command{
		Use:   "sos-server",
		Short: "Run the emergency alert engine with its gRPC and HTTP APIs.",
		Long: `Starts the emergency alert engine.

Alerts are raised over gRPC, REST, USSD, voice or MQTT wearables, located through
the device, operator and static tiers, and escalated to authorities when nobody
responds in time. Listen addresses come from the settings file and can be
overridden with flags. Only the port of a configured address is used.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			logger.InfoKV(ctx, "Starting sos-server", "version", version.Full())

			return server.Run(ctx, &server.Options{
				ConfigPath:  configPath,
				GRPCAddress: grpcAddress,
				HTTPAddress: httpAddress,
			})
		},
	}
)

// Execute runs the sos-server CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVar(&grpcAddress, "grpc-addr", "", "gRPC listen address override, e.g. :9090")
	rootCmd.Flags().StringVar(&httpAddress, "http-addr", "", "HTTP listen address override, e.g. :8080")
}
