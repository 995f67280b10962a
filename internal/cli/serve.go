package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GylleadheBodedono/API-Connect-Checklist/config"
	"github.com/GylleadheBodedono/API-Connect-Checklist/internal/logging"
)

// NewServeCommand creates the serve command
func NewServeCommand(root *RootOptions) *cobra.Command {
	var printConfig bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server, the gRPC health server and the intake worker",
		Long: `Start the reconciler.

Examples:
  reconciler serve --config ./config/reconciler.yml
  reconciler serve -c /etc/reconciler.yml --print-config`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.ConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if printConfig {
				cfg.LogConfiguration()
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, root.Version)
		},
	}

	cmd.Flags().BoolVar(&printConfig, "print-config", false, "print the effective configuration before starting")
	return cmd
}

func serve(ctx context.Context, cfg *config.Config, version string) error {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	logger = logger.With(zap.String("service", cfg.ServiceName))
	logger.Info("starting reconciler", zap.String("version", version))

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return err
	}
	defer a.close()

	return a.run(ctx)
}
