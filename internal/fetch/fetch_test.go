package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specialistvlad/datasetgo/internal/recipe"
)

const helloBody = "hello\n"

// sha256 of "hello\n"
const helloHash = "sha256:5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03"

func newTestFetcher(t *testing.T) *Fetcher {
	t.Helper()
	opts := DefaultOptions()
	opts.RetryWaitTime = 10 * time.Millisecond
	opts.RetryMaxWaitTime = 50 * time.Millisecond
	opts.Timeout = 5 * time.Second
	f := New(opts)
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFetchSource_Download(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(helloBody))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	dstDir := t.TempDir()
	src := &recipe.Source{Name: "hello", URL: server.URL + "/hello.txt", Hash: helloHash}

	path, computed, err := f.FetchSource(context.Background(), src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "hello.txt"), path)
	assert.Equal(t, helloHash, computed)
	assert.EqualValues(t, 1, hits.Load())

	// A second fetch sees the valid file and skips the network.
	_, _, err = f.FetchSource(context.Background(), src, dstDir)
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())
}

func TestFetchSource_BadHashOnDownload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered"))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	dstDir := t.TempDir()
	src := &recipe.Source{Name: "hello", URL: server.URL + "/hello.txt", Hash: helloHash}

	_, _, err := f.FetchSource(context.Background(), src, dstDir)
	var mismatch *HashMismatchError
	require.ErrorAs(t, err, &mismatch)

	// No corrupt data may remain for downstream steps.
	_, statErr := os.Stat(filepath.Join(dstDir, "hello.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFetchSource_RetriesThenSucceeds(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(helloBody))
	}))
	defer server.Close()

	f := newTestFetcher(t)
	src := &recipe.Source{Name: "hello", URL: server.URL + "/hello.txt", Hash: helloHash}

	_, computed, err := f.FetchSource(context.Background(), src, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, helloHash, computed)
	assert.EqualValues(t, 3, hits.Load())
}

func TestFetchSource_UnreachableSurfacesFetchError(t *testing.T) {
	f := newTestFetcher(t)
	src := &recipe.Source{Name: "hello", URL: "http://127.0.0.1:1/hello.txt", Hash: helloHash}

	_, _, err := f.FetchSource(context.Background(), src, t.TempDir())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, src.URL, fetchErr.URL)
}

func TestFetchSource_ManualStep(t *testing.T) {
	f := newTestFetcher(t)
	dstDir := t.TempDir()
	src := &recipe.Source{
		Name:     "gated",
		Message:  "accept the license at example.com and place gated.txt in the raw dir",
		FileName: "gated.txt",
		Hash:     helloHash,
	}

	_, _, err := f.FetchSource(context.Background(), src, dstDir)
	var manual *recipe.ManualStepError
	require.ErrorAs(t, err, &manual)
	assert.Equal(t, "gated", manual.Source)
	assert.Contains(t, manual.Instructions, "accept the license")

	// Once the user supplies a hash-valid file, the build may proceed.
	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "gated.txt"), []byte(helloBody), 0o644))
	path, computed, err := f.FetchSource(context.Background(), src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "gated.txt"), path)
	assert.Equal(t, helloHash, computed)
}

func TestFetchSource_ManualStepBadFile(t *testing.T) {
	f := newTestFetcher(t)
	dstDir := t.TempDir()
	src := &recipe.Source{Name: "gated", Message: "get it", FileName: "gated.txt", Hash: helloHash}

	require.NoError(t, os.WriteFile(filepath.Join(dstDir, "gated.txt"), []byte("wrong content"), 0o644))

	// A manual source cannot be re-fetched, so a bad hash fails immediately.
	_, _, err := f.FetchSource(context.Background(), src, dstDir)
	var mismatch *HashMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestFetchSource_CopyLocal(t *testing.T) {
	f := newTestFetcher(t)
	srcFile := filepath.Join(t.TempDir(), "local.txt")
	require.NoError(t, os.WriteFile(srcFile, []byte(helloBody), 0o644))

	dstDir := t.TempDir()
	src := &recipe.Source{Name: "local", SourceFile: srcFile, Hash: helloHash}

	path, computed, err := f.FetchSource(context.Background(), src, dstDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "local.txt"), path)
	assert.Equal(t, helloHash, computed)

	missing := &recipe.Source{Name: "ghost", SourceFile: filepath.Join(t.TempDir(), "nope.txt"), Hash: helloHash}
	_, _, err = f.FetchSource(context.Background(), missing, dstDir)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}

func TestFetchSource_TimeoutFlag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	}))
	defer server.Close()

	opts := DefaultOptions()
	opts.RetryCount = 0
	opts.Timeout = 100 * time.Millisecond
	f := New(opts)
	defer f.Close()

	src := &recipe.Source{Name: "slow", URL: server.URL + "/slow.txt", Hash: helloHash}
	_, _, err := f.FetchSource(context.Background(), src, t.TempDir())

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.True(t, fetchErr.Timeout)
}
