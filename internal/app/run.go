package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/specialistvlad/datasetgo/internal/ctxlog"
)

// Run executes the configured command.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	switch a.config.Command {
	case CommandList:
		return a.runList()
	case CommandPaths:
		return a.runPaths()
	case CommandFetch:
		return a.forEachDataset(ctx, func(ctx context.Context, name string) error {
			if err := a.builder.Fetch(ctx, name); err != nil {
				return err
			}
			fmt.Fprintf(a.outW, "fetched %s\n", name)
			return nil
		})
	case CommandBuild:
		return a.forEachDataset(ctx, func(ctx context.Context, name string) error {
			ds, err := a.builder.Build(ctx, name)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.outW, "built %s (%d bytes)\n", ds.Name(), len(ds.Data()))
			return nil
		})
	default:
		return fmt.Errorf("unknown command %q", a.config.Command)
	}
}

// runList writes registered dataset names in registration order.
func (a *App) runList() error {
	for name := range a.catalog.List() {
		fmt.Fprintln(a.outW, name)
	}
	return nil
}

// runPaths writes every symbolic path name with its resolved location.
func (a *App) runPaths() error {
	for _, key := range a.paths.Keys() {
		resolved, err := a.paths.Resolve(key)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.outW, "%s = %s\n", key, resolved)
	}
	return nil
}

// forEachDataset runs fn for every configured dataset name on a bounded
// worker pool. All names are attempted; failures are collected and joined.
func (a *App) forEachDataset(ctx context.Context, fn func(ctx context.Context, name string) error) error {
	names := a.config.Datasets
	workers := a.config.WorkerCount
	if workers > len(names) {
		workers = len(names)
	}
	a.logger.Debug("Dispatching dataset jobs.", "count", len(names), "workers", workers)

	jobs := make(chan string)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for name := range jobs {
				if err := fn(ctx, name); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}

	for _, name := range names {
		jobs <- name
	}
	close(jobs)
	wg.Wait()

	return errors.Join(errs...)
}
