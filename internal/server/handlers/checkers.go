package handlers

import (
	"context"
	"fmt"
	"os"

	"github.com/3leaps/protsearch/pkg/jobregistry"
	"github.com/3leaps/protsearch/pkg/searchtool"
)

// StorageChecker verifies that the queries and results directories exist
// and accept new files.
func StorageChecker(store *jobregistry.Store) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		layout := store.Layout()
		for _, dir := range []string{layout.QueriesDir, layout.ResultsDir} {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := checkWritableDir(dir); err != nil {
				return err
			}
		}
		return nil
	})
}

func checkWritableDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".health-*")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// SearchToolChecker verifies that the search binary resolves on PATH and
// the database file exists.
func SearchToolChecker(tool *searchtool.Tool) HealthChecker {
	return HealthCheckerFunc(func(ctx context.Context) error {
		if _, err := tool.LookPath(); err != nil {
			return fmt.Errorf("search binary: %w", err)
		}
		if _, err := os.Stat(tool.Config().Database); err != nil {
			return fmt.Errorf("search database: %w", err)
		}
		return nil
	})
}
