// Package app wires the catalog, path set, transform registry, and builder
// into a runnable application and dispatches its commands.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/specialistvlad/datasetgo/internal/builder"
	"github.com/specialistvlad/datasetgo/internal/catalog"
	"github.com/specialistvlad/datasetgo/internal/ctxlog"
	"github.com/specialistvlad/datasetgo/internal/fetch"
	"github.com/specialistvlad/datasetgo/internal/hclrecipe"
	"github.com/specialistvlad/datasetgo/internal/paths"
	"github.com/specialistvlad/datasetgo/internal/registry"
)

// configFileName is the path set's backing file inside the catalog directory.
const configFileName = "config.ini"

// manifestFileName is the catalog manifest inside the catalog directory.
const manifestFileName = "catalog.json"

// defaultPaths seeds a fresh project's path set. Everything hangs off the
// catalog directory, so relocating the project needs no config edits.
var defaultPaths = map[string]string{
	"project_path":        "${catalog_path}/..",
	"data_path":           "${project_path}/data",
	"raw_data_path":       "${data_path}/raw",
	"interim_data_path":   "${data_path}/interim",
	"processed_data_path": "${data_path}/processed",
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	paths    *paths.Store
	catalog  *catalog.Catalog
	registry *registry.Registry
	fetcher  *fetch.Fetcher
	builder  *builder.Builder
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance, including its own isolated logger and registry.
func NewApp(outW io.Writer, cfg *Config, modules ...registry.Module) (*App, error) {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	store, err := paths.Open(filepath.Join(cfg.CatalogDir, configFileName), defaultPaths)
	if err != nil {
		return nil, fmt.Errorf("failed to open path config: %w", err)
	}
	logger.Debug("Path set loaded.", "config", store.ConfigFile())

	cat, err := catalog.Open(filepath.Join(store.CatalogPath(), manifestFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	logger.Debug("Catalog loaded.", "manifest", cat.ManifestPath(), "recipes", cat.Len())

	reg := registry.New()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All transform modules registered.", "count", len(modules))

	if err := loadRecipes(ctx, cfg.RecipesPath, cat); err != nil {
		return nil, err
	}

	if err := reg.Validate(ctx, cat); err != nil {
		return nil, err
	}

	fetcher := fetch.New(cfg.Fetch)

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		paths:    store,
		catalog:  cat,
		registry: reg,
		fetcher:  fetcher,
		builder:  builder.New(store, cat, reg, fetcher),
	}, nil
}

// Close releases the app's transport resources.
func (a *App) Close() error {
	return a.fetcher.Close()
}

// loadRecipes registers recipe definitions from the optional .hcl authoring
// directory into the catalog. A missing directory is not an error so a bare
// catalog still works.
func loadRecipes(ctx context.Context, dir string, cat *catalog.Catalog) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		ctxlog.FromContext(ctx).Debug("Recipe directory does not exist, skipping.", "path", dir)
		return nil
	}

	recipes, err := hclrecipe.LoadDir(ctx, dir)
	if err != nil {
		return fmt.Errorf("failed to load recipe definitions: %w", err)
	}
	return hclrecipe.RegisterAll(ctx, cat, recipes)
}

// Paths returns the application's path set. This is primarily for testing.
func (a *App) Paths() *paths.Store {
	return a.paths
}

// Catalog returns the application's catalog. This is primarily for testing.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Registry returns the application's registry. This is primarily for testing.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// Builder returns the application's builder. This is primarily for testing.
func (a *App) Builder() *builder.Builder {
	return a.builder
}
