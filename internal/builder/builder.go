// Package builder executes recipes: it resolves the project paths, acquires
// and verifies raw sources, runs the recipe's transform, and caches the
// resulting dataset on disk keyed by name and declared hashes.
package builder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/specialistvlad/datasetgo/internal/catalog"
	"github.com/specialistvlad/datasetgo/internal/ctxlog"
	"github.com/specialistvlad/datasetgo/internal/dataset"
	"github.com/specialistvlad/datasetgo/internal/fetch"
	"github.com/specialistvlad/datasetgo/internal/paths"
	"github.com/specialistvlad/datasetgo/internal/recipe"
	"github.com/specialistvlad/datasetgo/internal/registry"
)

// Builder turns registered recipes into cached Datasets.
type Builder struct {
	paths    *paths.Store
	catalog  *catalog.Catalog
	registry *registry.Registry
	fetcher  *fetch.Fetcher

	// locks serializes concurrent builds of the same dataset name within
	// this process. Builds of distinct names run in parallel since they
	// touch disjoint cache keys.
	locks sync.Map // dataset name -> *sync.Mutex
}

// New wires a Builder from its collaborators.
func New(pathStore *paths.Store, cat *catalog.Catalog, reg *registry.Registry, fetcher *fetch.Fetcher) *Builder {
	return &Builder{
		paths:    pathStore,
		catalog:  cat,
		registry: reg,
		fetcher:  fetcher,
	}
}

// Build produces the named dataset, from cache when possible.
func (b *Builder) Build(ctx context.Context, name string) (*dataset.Dataset, error) {
	logger := ctxlog.FromContext(ctx).With("dataset", name)

	mu := b.nameLock(name)
	mu.Lock()
	defer mu.Unlock()

	rcp, err := b.catalog.Get(name)
	if err != nil {
		return nil, err
	}

	key := CacheKey(name, rcp)
	fileBase := fileBase(name, key)

	processedDir, err := b.paths.Resolve("processed_data_path")
	if err != nil {
		return nil, err
	}
	if dataset.Exists(processedDir, fileBase) {
		logger.Info("Cache hit, loading dataset from disk.", "cache_key", key)
		ds, err := dataset.Load(processedDir, fileBase)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: failed to load cached copy: %w", name, err)
		}
		return ds, nil
	}
	logger.Info("Cache miss, executing recipe.", "cache_key", key)

	in, hashes, err := b.acquireSources(ctx, rcp)
	if err != nil {
		return nil, err
	}

	fn, ok := b.registry.Transform(rcp.Transform.Name)
	if !ok {
		return nil, fmt.Errorf("dataset %q: transform %q is not registered", name, rcp.Transform.Name)
	}

	logger.Debug("Running transform.", "transform", rcp.Transform.Name)
	out, err := fn(ctx, in)
	if err != nil {
		// Transform errors propagate unchanged, tagged with the dataset name.
		return nil, fmt.Errorf("dataset %q: transform %q: %w", name, rcp.Transform.Name, err)
	}

	ds, err := b.assemble(rcp, hashes, out)
	if err != nil {
		return nil, err
	}

	if err := ds.Dump(processedDir, fileBase); err != nil {
		return nil, fmt.Errorf("dataset %q: failed to persist: %w", name, err)
	}
	logger.Info("Dataset built and cached.", "cache_key", key, "dir", processedDir)
	return ds, nil
}

// Fetch acquires and verifies the named recipe's raw sources without
// transforming or caching a dataset.
func (b *Builder) Fetch(ctx context.Context, name string) error {
	rcp, err := b.catalog.Get(name)
	if err != nil {
		return err
	}
	_, _, err = b.acquireSources(ctx, rcp)
	return err
}

// acquireSources fetches every declared source into the raw directory,
// verifies hashes, and unpacks archives into the interim directory where the
// recipe asks for it. No partial or corrupt data is handed to the transform.
func (b *Builder) acquireSources(ctx context.Context, rcp *recipe.Recipe) (*registry.Input, map[string]string, error) {
	logger := ctxlog.FromContext(ctx).With("dataset", rcp.Name)

	rawDir, err := b.paths.Resolve("raw_data_path")
	if err != nil {
		return nil, nil, err
	}
	interimDir, err := b.paths.Resolve("interim_data_path")
	if err != nil {
		return nil, nil, err
	}
	interimDir = filepath.Join(interimDir, rcp.Name)

	in := &registry.Input{
		Dataset:  rcp.Name,
		RawFiles: make(map[string]string, len(rcp.Sources)),
		Options:  rcp.Transform.Options,
	}
	hashes := make(map[string]string, len(rcp.Sources))

	for i := range rcp.Sources {
		src := &rcp.Sources[i]
		path, computed, err := b.fetcher.FetchSource(ctx, src, rawDir)
		if err != nil {
			return nil, nil, fmt.Errorf("dataset %q: source %q: %w", rcp.Name, src.Name, err)
		}
		in.RawFiles[src.Name] = path
		hashes[src.TargetFileName()] = computed

		if src.Unpack {
			if err := fetch.Unpack(ctx, path, interimDir); err != nil {
				return nil, nil, fmt.Errorf("dataset %q: source %q: failed to unpack: %w", rcp.Name, src.Name, err)
			}
			in.InterimDir = interimDir
		}
	}

	logger.Debug("All sources acquired and verified.", "count", len(rcp.Sources))
	return in, hashes, nil
}

// assemble builds the immutable Dataset from the transform output and the
// verified source hashes.
func (b *Builder) assemble(rcp *recipe.Recipe, hashes map[string]string, out *registry.Output) (*dataset.Dataset, error) {
	data, err := json.Marshal(out.Data)
	if err != nil {
		return nil, fmt.Errorf("dataset %q: failed to serialize data payload: %w", rcp.Name, err)
	}
	var target json.RawMessage
	if out.Target != nil {
		target, err = json.Marshal(out.Target)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: failed to serialize target payload: %w", rcp.Name, err)
		}
	}

	meta := dataset.Metadata{
		Name:        rcp.Name,
		Description: rcp.Description,
		License:     rcp.License,
		Hashes:      hashes,
		Extra:       out.Extra,
	}
	return dataset.New(meta, data, target)
}

// CleanInterim removes the named dataset's unpacked intermediate artifacts.
func (b *Builder) CleanInterim(name string) error {
	interimDir, err := b.paths.Resolve("interim_data_path")
	if err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(interimDir, name))
}

func (b *Builder) nameLock(name string) *sync.Mutex {
	mu, _ := b.locks.LoadOrStore(name, &sync.Mutex{})
	return mu.(*sync.Mutex)
}
