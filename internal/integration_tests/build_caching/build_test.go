package integration_tests

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/datasetgo/internal/testutil"
)

const irisCSV = "sepal,petal,species\n1,2,setosa\n3,4,versicolor\n"

// sha256 of irisCSV
const irisHash = "sha256:679caca481f0e6449b1d21e0c5799a59db71a72bf21a3b4b6bb6539228906897"

func irisRecipe(serverURL string) string {
	return fmt.Sprintf(`
recipe "iris" {
  description = "tiny iris sample"
  license     = "CC0"

  source "main" {
    url  = "%s/iris.csv"
    hash = "%s"
  }

  transform {
    name = "csv_table"
    options = {
      target_column = "species"
    }
  }
}
`, serverURL, irisHash)
}

func TestBuild_EndToEnd(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(irisCSV))
	}))
	defer server.Close()

	files := map[string]string{"recipes/iris.hcl": irisRecipe(server.URL)}
	res := testutil.RunIntegrationTest(t, files, "build", "iris")
	require.NoError(t, res.Err)
	assert.Contains(t, res.Output, "built iris")
	assert.EqualValues(t, 1, hits.Load())

	// The raw file, the processed dataset, and its metadata sidecar all land
	// under the default data tree next to the catalog directory.
	_, err := os.Stat(filepath.Join(res.ProjectDir, "data", "raw", "iris.csv"))
	assert.NoError(t, err)

	processed, err := os.ReadDir(filepath.Join(res.ProjectDir, "data", "processed"))
	require.NoError(t, err)
	var names []string
	for _, e := range processed {
		names = append(names, e.Name())
	}
	assert.Len(t, names, 2)

	// A second run of the same command is served from the cache.
	require.NoError(t, res.App.Run(context.Background()))
	assert.EqualValues(t, 1, hits.Load())
	assert.Contains(t, res.Output, "Cache hit")
}

func TestBuild_DatasetPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(irisCSV))
	}))
	defer server.Close()

	files := map[string]string{"recipes/iris.hcl": irisRecipe(server.URL)}
	res := testutil.RunIntegrationTest(t, files, "build", "iris")
	require.NoError(t, res.Err)

	ds, err := res.App.Builder().Build(context.Background(), "iris")
	require.NoError(t, err)
	assert.Equal(t, "CC0", ds.License())
	assert.Equal(t, irisHash, ds.Hashes()["iris.csv"])
	assert.JSONEq(t, `{"columns":["sepal","petal"],"rows":[["1","2"],["3","4"]]}`, string(ds.Data()))
	assert.JSONEq(t, `["setosa","versicolor"]`, string(ds.Target()))
}

func TestList_RegistrationOrder(t *testing.T) {
	files := map[string]string{
		"recipes/a.hcl": `
recipe "beta" {
  source "main" {
    message = "ask around"
    file_name = "beta.txt"
    hash = "sha256:b6a98d9ce9a2d9149288fa3df42d377c3e42737afdcdaf714e33c0a100b51060"
  }
  transform {
    name = "text_file"
  }
}

recipe "alpha" {
  source "main" {
    message = "ask around"
    file_name = "alpha.txt"
    hash = "sha256:b6a98d9ce9a2d9149288fa3df42d377c3e42737afdcdaf714e33c0a100b51060"
  }
  transform {
    name = "text_file"
  }
}
`,
	}
	res := testutil.RunIntegrationTest(t, files, "list")
	require.NoError(t, res.Err)

	// Names come back in registration order, not sorted.
	beta := indexOf(t, res.Output, "beta")
	alpha := indexOf(t, res.Output, "alpha")
	assert.Less(t, beta, alpha)
}

func TestPaths_ResolvedTree(t *testing.T) {
	res := testutil.RunIntegrationTest(t, nil, "paths")
	require.NoError(t, res.Err)

	assert.Contains(t, res.Output, "catalog_path = "+filepath.Join(res.ProjectDir, "catalog"))
	assert.Contains(t, res.Output, "raw_data_path = "+filepath.Join(res.ProjectDir, "data", "raw"))
}

func TestManualSource_PreplacedFileBuilds(t *testing.T) {
	files := map[string]string{
		"recipes/gated.hcl": `
recipe "gated" {
  source "main" {
    message   = "obtain alpha.txt from the data owner"
    file_name = "alpha.txt"
    hash      = "sha256:b6a98d9ce9a2d9149288fa3df42d377c3e42737afdcdaf714e33c0a100b51060"
  }
  transform {
    name = "text_file"
    options = {
      trim = "true"
    }
  }
}
`,
		"data/raw/alpha.txt": "alpha\n",
	}
	res := testutil.RunIntegrationTest(t, files, "build", "gated")
	require.NoError(t, res.Err)

	ds, err := res.App.Builder().Build(context.Background(), "gated")
	require.NoError(t, err)
	assert.JSONEq(t, `{"main":"alpha"}`, string(ds.Data()))
}

func indexOf(t *testing.T, haystack, needle string) int {
	t.Helper()
	idx := strings.Index(haystack, needle)
	require.GreaterOrEqual(t, idx, 0, "expected output to contain %q", needle)
	return idx
}
