package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/3leaps/protsearch/internal/server"
	"github.com/3leaps/protsearch/internal/server/handlers"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Run the HTTP API.

Endpoints:
  POST /queries          submit a sequence, returns 202 with the job id
  POST /queries:wait     submit and block until the job finishes
  GET  /results          list jobs, newest first
  GET  /results/{job_id} job status and parsed result rows
  GET  /health[/live|/ready|/startup], GET /version

Expired jobs are swept on every submission and every --sweep-interval.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "Listen host (overrides server.host)")
	serveCmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().Duration("sweep-interval", 0, "Periodic sweep interval (overrides jobs.sweep_interval)")
}

func serveOverrides(cmd *cobra.Command) map[string]any {
	srv := map[string]any{}
	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		srv["host"] = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		srv["port"] = port
	}
	overrides := map[string]any{}
	if len(srv) > 0 {
		overrides["server"] = srv
	}
	if cmd.Flags().Changed("sweep-interval") {
		d, _ := cmd.Flags().GetDuration("sweep-interval")
		overrides["jobs"] = map[string]any{"sweep_interval": d}
	}
	return overrides
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, serveOverrides(cmd))
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}

	health := handlers.InitHealthManager(versionInfo.Version)
	health.RegisterChecker("storage", handlers.StorageChecker(svc.store))
	health.RegisterChecker("search_tool", handlers.SearchToolChecker(svc.tool))

	httpLogger := logger.Named("http")
	handlers.SetHTTPErrorResponder(handlers.LoggingErrorResponder(httpLogger))
	defer handlers.ResetHTTPErrorResponder()

	srv := server.New(cfg.Server.Host, cfg.Server.Port,
		server.WithExecutor(svc.executor),
		server.WithLogger(httpLogger),
		server.WithSubmitLimit(cfg.Server.SubmitRate, cfg.Server.SubmitBurst),
		server.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout),
	)

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if res, err := svc.executor.Sweep(); err != nil {
		logger.Warn("Startup sweep failed", zap.Error(err))
	} else {
		logger.Info("Startup sweep finished", zap.Int("scanned", res.Scanned), zap.Int("deleted", res.Deleted))
	}

	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		svc.executor.RunSweeper(ctx, cfg.Jobs.SweepInterval)
	}()

	logger.Info("Starting protsearch",
		zap.String("version", versionInfo.Version),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("queries_dir", cfg.Storage.QueriesDir),
		zap.String("results_dir", cfg.Storage.ResultsDir),
		zap.Int("retention_days", cfg.Storage.RetentionDays))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("HTTP server stopped", zap.Error(serveErr))
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	<-sweeperDone

	if !waitBackground(svc, cfg.Server.ShutdownTimeout) {
		logger.Warn("Searches still running at exit; their jobs will stay in processing until swept",
			zap.Duration("waited", cfg.Server.ShutdownTimeout))
	}

	if serveErr != nil {
		return fmt.Errorf("serve: %w", serveErr)
	}
	return nil
}

// waitBackground waits up to d for background searches and sweeps.
func waitBackground(svc *services, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		svc.executor.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
