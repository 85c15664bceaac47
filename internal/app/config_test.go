package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/datasetgo/internal/fetch"
)

func TestNewConfig_FillsDefaults(t *testing.T) {
	cfg, err := NewConfig(Config{CatalogDir: "catalog", Command: CommandList})
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, fetch.DefaultOptions(), cfg.Fetch)
}

func TestNewConfig_RequiresCatalogDir(t *testing.T) {
	_, err := NewConfig(Config{Command: CommandList})
	require.Error(t, err)
}

func TestNewConfig_CommandArity(t *testing.T) {
	_, err := NewConfig(Config{CatalogDir: "catalog", Command: CommandBuild})
	require.Error(t, err)

	_, err = NewConfig(Config{CatalogDir: "catalog", Command: CommandList, Datasets: []string{"iris"}})
	require.Error(t, err)

	_, err = NewConfig(Config{CatalogDir: "catalog", Command: "destroy"})
	require.Error(t, err)

	cfg, err := NewConfig(Config{CatalogDir: "catalog", Command: CommandFetch, Datasets: []string{"iris"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"iris"}, cfg.Datasets)
}
