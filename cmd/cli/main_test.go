package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_HelpExitsCleanly(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run(&out, nil))
	assert.Contains(t, out.String(), "Usage:")
}

func TestRun_ListOnFreshCatalog(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := run(&out, []string{
		"-catalog", filepath.Join(dir, "catalog"),
		"-recipes", filepath.Join(dir, "recipes"),
		"--log-level=error",
		"list",
	})
	require.NoError(t, err)
}

func TestRun_UnknownDatasetFails(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer

	err := run(&out, []string{
		"-catalog", filepath.Join(dir, "catalog"),
		"--log-level=error",
		"build", "nope",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `dataset "nope" not found`)
}
