package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultEntries() map[string]string {
	return map[string]string{
		"project_path":        "${catalog_path}/..",
		"data_path":           "${project_path}/data",
		"raw_data_path":       "${data_path}/raw",
		"interim_data_path":   "${data_path}/interim",
		"processed_data_path": "${data_path}/processed",
	}
}

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	projectDir := t.TempDir()
	configFile := filepath.Join(projectDir, "catalog", "config.ini")
	store, err := Open(configFile, defaultEntries())
	require.NoError(t, err)
	return store, projectDir
}

func TestResolve_NestedInterpolation(t *testing.T) {
	store, projectDir := openTestStore(t)

	got, err := store.Resolve("raw_data_path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(projectDir, "data", "raw"), got)

	got, err = store.Resolve("project_path")
	require.NoError(t, err)
	assert.Equal(t, projectDir, got)
}

func TestResolve_RootChangePropagates(t *testing.T) {
	store, _ := openTestStore(t)

	require.NoError(t, store.Set("project_path", "/tmp3"))

	got, err := store.Resolve("raw_data_path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean("/tmp3/data/raw"), got)
}

func TestResolve_UndefinedReference(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("odd_path", "${nope}/x"))

	_, err := store.Resolve("odd_path")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "nope", cfgErr.Key)
}

func TestResolve_CycleDetected(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("a_path", "${b_path}/a"))
	require.NoError(t, store.Set("b_path", "${a_path}/b"))

	_, err := store.Resolve("a_path")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Reason, "cycle")
}

func TestSet_ProtectedKey(t *testing.T) {
	store, _ := openTestStore(t)

	before, err := store.Resolve(CatalogPathKey)
	require.NoError(t, err)

	err = store.Set(CatalogPathKey, "/tmp")
	var protErr *ProtectedKeyError
	require.ErrorAs(t, err, &protErr)

	after, err := store.Resolve(CatalogPathKey)
	require.NoError(t, err)
	assert.Equal(t, before, after, "failed set must leave the store unchanged")
}

func TestPersistence_RawFormOnly(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("data_path", "${project_path}/datasets"))

	content, err := os.ReadFile(store.ConfigFile())
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "${project_path}/datasets", "interpolated form is persisted")
	assert.NotContains(t, text, CatalogPathKey, "reserved key never hits disk")
	for _, line := range strings.Split(text, "\n") {
		assert.NotContains(t, line, store.CatalogPath(), "no absolute resolution on disk")
	}
}

func TestReopen_DiskValuesWinOverDefaults(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("data_path", "${project_path}/elsewhere"))

	reopened, err := Open(store.ConfigFile(), defaultEntries())
	require.NoError(t, err)

	raw, ok := reopened.Raw("data_path")
	require.True(t, ok)
	assert.Equal(t, "${project_path}/elsewhere", raw)
}

func TestDelete(t *testing.T) {
	store, _ := openTestStore(t)
	require.NoError(t, store.Set("scratch_path", "${data_path}/scratch"))
	require.NoError(t, store.Delete("scratch_path"))

	_, err := store.Resolve("scratch_path")
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)

	err = store.Delete(CatalogPathKey)
	var protErr *ProtectedKeyError
	require.ErrorAs(t, err, &protErr)
}
