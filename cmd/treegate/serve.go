package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/treegate/internal/config"
	httpserver "github.com/fyrsmithlabs/treegate/internal/http"
	"github.com/fyrsmithlabs/treegate/internal/logging"
	mcpserver "github.com/fyrsmithlabs/treegate/internal/mcp"
	"github.com/fyrsmithlabs/treegate/internal/telemetry"
	"github.com/fyrsmithlabs/treegate/pkg/limits"
	"github.com/fyrsmithlabs/treegate/pkg/secrets"
	"github.com/fyrsmithlabs/treegate/pkg/security"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP stdio server",
	Long: `Serve the gating tools over the MCP stdio transport. When
server.enabled is set in the configuration, the introspection HTTP server
(health, stats, validate, Prometheus metrics) runs alongside it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Protocol:       cfg.Telemetry.OTLPProtocol,
	})
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	defer func() { _ = tel.Shutdown(context.Background()) }()

	logger, logCleanup, err := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		OTEL:   cfg.Telemetry.Enabled,
	}, tel.LoggerProvider())
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logCleanup()
	defer func() { _ = logger.Sync() }()

	sec, err := buildSecurityContext(cfg, logger, tel)
	if err != nil {
		return fmt.Errorf("building security context: %w", err)
	}
	defer sec.Destroy()

	mcpSrv, err := mcpserver.NewServer(&mcpserver.Config{
		Name:    "treegate",
		Version: version,
		Logger:  logger,
	}, sec)
	if err != nil {
		return fmt.Errorf("building MCP server: %w", err)
	}

	if cfg.Server.Enabled {
		httpSrv, err := httpserver.NewServer(sec, logger, &httpserver.Config{
			Host: cfg.Server.Host,
			Port: cfg.Server.Port,
		})
		if err != nil {
			return fmt.Errorf("building http server: %w", err)
		}
		go func() {
			if err := httpSrv.Start(); err != nil {
				logger.Warn("http server stopped", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(
				context.Background(), cfg.Server.ShutdownTimeout)
			defer shutdownCancel()
			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http server shutdown", zap.Error(err))
			}
		}()
	}

	logger.Info("treegate starting",
		zap.String("version", version),
		zap.Strings("allowed_roots", cfg.Security.AllowedRoots),
		zap.Bool("http_enabled", cfg.Server.Enabled),
	)

	err = mcpSrv.Run(ctx)
	if ctx.Err() != nil {
		// Shutdown by signal, not a failure.
		logger.Info("treegate stopping")
		return nil
	}
	return err
}

// buildSecurityContext assembles the gating pipeline from configuration:
// limiter metrics on the telemetry meter, and the advisory secret scanner
// as parser inspector when enabled.
func buildSecurityContext(cfg *config.Config, logger *zap.Logger, tel *telemetry.Telemetry) (*security.Context, error) {
	opts := []security.Option{security.WithLogger(logger)}

	metrics, err := limits.NewMetrics(tel.Meter("treegate/limits"))
	if err != nil {
		logger.Warn("limiter metrics unavailable", zap.Error(err))
	} else {
		opts = append(opts, security.WithMetrics(metrics))
	}

	if cfg.Security.SecretScan {
		allowlist, err := secrets.LoadAllowlist(cfg.Security.AllowlistPath)
		if err != nil {
			return nil, fmt.Errorf("loading secret allowlist: %w", err)
		}
		scanner, err := secrets.NewScanner(allowlist)
		if err != nil {
			return nil, fmt.Errorf("building secret scanner: %w", err)
		}
		opts = append(opts, security.WithInspector(scanner))
	}

	return security.New(cfg.SecurityConfig(), opts...)
}
