package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/datasetgo/internal/fetch"
)

// Commands understood by App.Run.
const (
	CommandBuild = "build"
	CommandFetch = "fetch"
	CommandList  = "list"
	CommandPaths = "paths"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	CatalogDir  string // directory holding config.ini and catalog.json
	RecipesPath string // directory of .hcl recipe definitions, optional

	Command  string
	Datasets []string

	LogFormat   string
	LogLevel    string
	WorkerCount int
	Fetch       fetch.Options
}

// NewConfig validates cfg and fills in unset defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.CatalogDir == "" {
		return nil, errors.New("CatalogDir is a required configuration field and cannot be empty")
	}

	switch cfg.Command {
	case CommandBuild, CommandFetch:
		if len(cfg.Datasets) == 0 {
			return nil, fmt.Errorf("command %q requires at least one dataset name", cfg.Command)
		}
	case CommandList, CommandPaths:
		if len(cfg.Datasets) > 0 {
			return nil, fmt.Errorf("command %q takes no dataset names", cfg.Command)
		}
	default:
		return nil, fmt.Errorf("unknown command %q", cfg.Command)
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.Fetch == (fetch.Options{}) {
		cfg.Fetch = fetch.DefaultOptions()
	}

	return &cfg, nil
}
