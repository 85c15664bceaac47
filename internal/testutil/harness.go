// Package testutil provides shared helpers for integration-style tests:
// a thread-safe log buffer and a harness that stands up a full application
// against a temporary project directory.
package testutil

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/datasetgo/internal/app"
	"github.com/specialistvlad/datasetgo/internal/fetch"
)

// SafeBuffer is a thread-safe buffer for capturing output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	Output     string
	Err        error
	App        *app.App
	ProjectDir string
}

// RunIntegrationTest writes the given files into a temporary project
// directory, stands up an App against its catalog/ and recipes/
// subdirectories, and runs the command. File names are relative to the
// project root (e.g. "recipes/iris.hcl", "data/raw/iris.csv").
func RunIntegrationTest(t *testing.T, files map[string]string, command string, datasets ...string) *HarnessResult {
	t.Helper()
	return RunIntegrationTestWithContext(context.Background(), t, files, command, datasets...)
}

// RunIntegrationTestWithContext is RunIntegrationTest with a caller-provided
// context.
func RunIntegrationTestWithContext(ctx context.Context, t *testing.T, files map[string]string, command string, datasets ...string) *HarnessResult {
	t.Helper()

	projectDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(projectDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	fetchOpts := fetch.DefaultOptions()
	fetchOpts.RetryWaitTime = 10 * time.Millisecond
	fetchOpts.RetryMaxWaitTime = 50 * time.Millisecond

	config, err := app.NewConfig(app.Config{
		CatalogDir:  filepath.Join(projectDir, "catalog"),
		RecipesPath: filepath.Join(projectDir, "recipes"),
		Command:     command,
		Datasets:    datasets,
		LogFormat:   "text",
		LogLevel:    "debug",
		WorkerCount: 4,
		Fetch:       fetchOpts,
	})
	require.NoError(t, err)

	output := &SafeBuffer{}
	testApp, err := app.NewApp(output, config)
	if err != nil {
		return &HarnessResult{Output: output.String(), Err: err, ProjectDir: projectDir}
	}
	t.Cleanup(func() { testApp.Close() })

	runErr := testApp.Run(ctx)
	if os.Getenv("DSGO_TEST_LOGS") == "true" {
		t.Logf("--- Full Output for %s ---\n%s", t.Name(), output.String())
	}

	return &HarnessResult{
		Output:     output.String(),
		Err:        runErr,
		App:        testApp,
		ProjectDir: projectDir,
	}
}
