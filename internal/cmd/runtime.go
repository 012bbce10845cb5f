package cmd

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/3leaps/protsearch/internal/config"
	"github.com/3leaps/protsearch/internal/observability"
	"github.com/3leaps/protsearch/pkg/jobregistry"
	"github.com/3leaps/protsearch/pkg/searchtool"
)

// services bundles the components shared by serve and submit.
type services struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *jobregistry.Store
	tool     *searchtool.Tool
	executor *jobregistry.Executor
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logger, err := observability.NewLogger(appName, cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	return logger, nil
}

func openStore(cfg *config.Config) (*jobregistry.Store, error) {
	store, err := jobregistry.NewStore(cfg.Storage.Layout())
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	return store, nil
}

// newServices builds the store, search tool and executor from cfg and
// creates the job directories.
func newServices(cfg *config.Config, logger *zap.Logger) (*services, error) {
	store, err := openStore(cfg)
	if err != nil {
		return nil, err
	}
	if err := store.EnsureDirs(); err != nil {
		return nil, err
	}

	tool, err := searchtool.New(cfg.Search.Tool(), logger.Named("searchtool"))
	if err != nil {
		return nil, fmt.Errorf("configure search tool: %w", err)
	}
	if path, err := tool.LookPath(); err != nil {
		logger.Warn("Search binary not found; jobs will fail until it is installed",
			zap.String("path", cfg.Search.Path), zap.Error(err))
	} else {
		logger.Debug("Search binary resolved", zap.String("path", path))
	}

	executor := jobregistry.NewExecutor(store, tool, jobregistry.ExecutorConfig{
		Retention:    cfg.Storage.Retention(),
		PollInterval: cfg.Jobs.PollInterval,
		Logger:       logger.Named("jobs"),
	})

	return &services{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		tool:     tool,
		executor: executor,
	}, nil
}
