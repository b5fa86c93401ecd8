package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluffypony/llm-proxifier/pkg/config"
	"github.com/fluffypony/llm-proxifier/pkg/forwarder"
	"github.com/fluffypony/llm-proxifier/pkg/httpapi"
	"github.com/fluffypony/llm-proxifier/pkg/queue"
	"github.com/fluffypony/llm-proxifier/pkg/scheduler"
	"github.com/fluffypony/llm-proxifier/pkg/telemetry/logging"
	"github.com/fluffypony/llm-proxifier/pkg/telemetry/metrics"
)

const shutdownTimeout = 15 * time.Second

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the llm-proxifier gateway",
	Long: `Start the llm-proxifier gateway with the specified configuration.

The gateway listens on the configured address, starts each model's
llama-server process on demand, queues requests while a model is coming up,
and forwards chat and completion requests (including streaming) to whichever
backend is ready.

Examples:
  # Start with the default config file
  llm-proxifier run

  # Start with a custom config file
  llm-proxifier run --config /etc/llm-proxifier/config.yaml

  # Override the listen address
  llm-proxifier run --listen 0.0.0.0:8080

  # Validate config without starting the gateway
  llm-proxifier run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address (host:port)")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the gateway")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload configuration on file change")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	config.ApplyEnvOverrides(cfg)

	if runFlags.listenAddress != "" {
		host, portStr, err := net.SplitHostPort(runFlags.listenAddress)
		if err != nil {
			return fmt.Errorf("invalid --listen address %q: %w", runFlags.listenAddress, err)
		}
		var port int
		if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
			return fmt.Errorf("invalid --listen port %q: %w", portStr, err)
		}
		cfg.Proxy.Host = host
		cfg.Proxy.Port = port
	}

	logLevel := runFlags.logLevel
	if logLevel == "" {
		logLevel = "info"
		if verbose {
			logLevel = "debug"
		}
	}

	logger, err := logging.New(logging.Config{Level: logLevel, Format: "json"})
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer logger.Shutdown()

	if runFlags.dryRun {
		fmt.Println("✓ configuration valid")
		return nil
	}

	fmt.Printf("llm-proxifier v%s\n", Version)
	fmt.Printf("loaded configuration from: %s (%d models)\n", cfgFile, len(cfg.Models))

	collector := metrics.NewCollector(nil)

	queueMgr := queue.NewManager(logger.Slog())

	sched := scheduler.New(queueMgr, time.Duration(cfg.Proxy.IdleTimeoutMinutes)*time.Minute, cfg.Proxy.MaxConcurrentModels, logger.Slog())
	sched.LoadConfigs(cfg.Models)

	fwd := forwarder.New(sched, queueMgr, logger.Slog())

	srv := httpapi.New(cfg.Proxy, sched, queueMgr, fwd, collector, httpapi.BuildInfo{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}, logger.Slog())

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	queueMgr.Start(rootCtx)
	sched.StartCleanupTask(rootCtx)

	logger.Info("starting auto-start and preload models")
	sched.StartAllAuto(rootCtx)
	sched.Preload(rootCtx)

	var watcher *config.Watcher
	if runFlags.watch {
		watcher, err = config.NewWatcher(cfgFile, logger.Slog(), 0)
		if err != nil {
			logger.Warn("config watcher disabled", "error", err)
		} else {
			go func() {
				err := watcher.Watch(rootCtx, func(newCfg *config.Config) {
					diff, err := sched.ApplyConfigs(newCfg.Models)
					if err != nil {
						logger.Error("config reload rejected", "error", err)
						return
					}
					logger.Info("configuration reloaded",
						"added", diff.Added, "removed", diff.Removed, "modified", diff.Modified)
				})
				if err != nil {
					logger.Error("config watcher stopped", "error", err)
				}
			}()
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP server", "addr", net.JoinHostPort(cfg.Proxy.Host, fmt.Sprintf("%d", cfg.Proxy.Port)))
		if err := srv.Start(rootCtx); err != nil {
			errCh <- err
		}
	}()

	fmt.Printf("✓ listening on %s:%d\n", cfg.Proxy.Host, cfg.Proxy.Port)
	fmt.Printf("✓ health endpoint: http://%s:%d/health\n", cfg.Proxy.Host, cfg.Proxy.Port)
	fmt.Printf("✓ metrics endpoint: http://%s:%d/metrics\n", cfg.Proxy.Host, cfg.Proxy.Port)
	fmt.Println("\npress Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		shutdown(rootCancel, watcher, sched, queueMgr, srv, logger)
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigCh:
		fmt.Printf("\nreceived signal %s, shutting down gracefully...\n", sig)
		shutdown(rootCancel, watcher, sched, queueMgr, srv, logger)
		fmt.Println("✓ stopped")
		return nil
	}
}

func shutdown(cancel context.CancelFunc, watcher *config.Watcher, sched *scheduler.Manager, queueMgr *queue.Manager, srv *httpapi.Server, logger *logging.Logger) {
	if watcher != nil {
		watcher.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	sched.Shutdown(shutdownCtx)
	queueMgr.Stop()
	cancel()
}
