package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wardenhq/warden/internal/config"
	"github.com/wardenhq/warden/internal/host"
	"github.com/wardenhq/warden/internal/logging"
	"github.com/wardenhq/warden/internal/protocol"
	"github.com/wardenhq/warden/internal/security"
	"github.com/wardenhq/warden/internal/server"
	"github.com/wardenhq/warden/internal/tools"
	"github.com/wardenhq/warden/internal/version"
	"github.com/wardenhq/warden/internal/watcher"
)

const serverName = "warden"

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Start the admin gateway",
	Long: `Start the gateway: the synchronous request endpoint, the streaming
event endpoint, and the health probe. The command allow-list is
re-read whenever the config file changes on disk.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "listen port (overrides config)")
	serveCmd.Flags().String("host", "", "listen host (overrides config)")
	serveCmd.Flags().String("api-key", "", "API key (overrides config)")
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("security.api_key", serveCmd.Flags().Lookup("api-key"))
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := logging.NewLogger(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Security services.
	limiter := security.NewRateLimiter(logger)
	defer limiter.Stop()

	tracker := security.NewAttemptTracker()
	guard := security.NewGuard(security.GuardConfig{
		Enabled:          cfg.Security.AuthEnabled,
		APIKey:           cfg.Security.APIKey,
		MaxAuthAttempts:  cfg.Security.MaxAuthAttempts,
		BanDuration:      cfg.Security.BanDuration(),
		RateLimitEnabled: cfg.Security.RateLimit.Enabled,
		AuthPerMinute:    cfg.Security.RateLimit.AuthPerMinute,
	}, limiter, tracker, logger)

	sessions := security.NewSessionStore(cfg.Security.SessionTimeout(), logger)
	sessions.Start(ctx)
	defer sessions.Stop()

	policy := security.NewCommandPolicy(cfg.Whitelist.Enabled, cfg.Whitelist.Commands, logger)

	// Host side.
	logs := host.NewLogBuffer(cfg.Host.LogBuffer)
	runner := host.NewRunner(cfg.Host.ExecTimeout, logger)
	defer runner.Stop()

	sim := host.NewSim(version.Version, logs)

	registry := protocol.NewRegistry()
	tools.RegisterAll(registry, runner, sim, policy, logs, serverName, version.Version)

	dispatcher := protocol.NewDispatcher(protocol.DispatcherConfig{
		ServerName:       serverName,
		ServerVersion:    version.Version,
		ToolsEnabled:     true,
		ResourcesEnabled: true,
	}, registry, sessions, policy, logger)
	if cfg.Security.RateLimit.Enabled {
		dispatcher.SetCommandLimiter(limiter, cfg.Security.RateLimit.CommandsPerMinute)
	}

	// Transport.
	hub := server.NewHub(cfg.Server.MaxStreamSubscribers, logger)
	go hub.Run(ctx)
	sim.SetPublisher(func(event host.Event) { hub.Broadcast(event) })

	srv := server.New(cfg, logger, dispatcher, guard, limiter, hub)

	// Allow-list hot reload from the config file.
	if path := viper.ConfigFileUsed(); path != "" {
		cw, watchErr := watcher.New(path, 250*time.Millisecond, func() error {
			reloaded, loadErr := config.Load()
			if loadErr != nil {
				return loadErr
			}
			policy.Reload(reloaded.Whitelist.Commands)
			return nil
		}, logger)
		if watchErr != nil {
			logger.Warn(ctx, watchErr, "config watcher unavailable", "path", path)
		} else {
			go func() {
				if runErr := cw.Run(ctx); runErr != nil {
					logger.Warn(ctx, runErr, "config watcher stopped", "path", path)
				}
			}()
		}
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start(ctx) }()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	return <-serveErr
}
