// Package fetch acquires and verifies the raw sources a recipe declares:
// HTTP downloads with bounded retries, local file ingestion, and
// hash verification of everything that lands in the raw directory.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	resty "resty.dev/v3"

	"github.com/specialistvlad/datasetgo/internal/ctxlog"
	"github.com/specialistvlad/datasetgo/internal/fsutil"
	"github.com/specialistvlad/datasetgo/internal/recipe"
)

// FetchError reports a network or I/O failure acquiring a raw source, after
// retries were exhausted. Timeout distinguishes deadline expiry from other
// transport failures.
type FetchError struct {
	URL     string
	Timeout bool
	Err     error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("fetch of %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("fetch of %s failed: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying transport error.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Options configures the retry and timeout policy for HTTP fetches. The
// documentation of the original mechanism leaves these unspecified, so they
// are policy, not constants.
type Options struct {
	RetryCount       int
	RetryWaitTime    time.Duration
	RetryMaxWaitTime time.Duration
	Timeout          time.Duration
}

// DefaultOptions returns the fetch policy used when the caller does not
// override it.
func DefaultOptions() Options {
	return Options{
		RetryCount:       3,
		RetryWaitTime:    500 * time.Millisecond,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          30 * time.Second,
	}
}

// Fetcher downloads raw sources into the raw data directory.
type Fetcher struct {
	client *resty.Client
}

// New creates a Fetcher with the given retry/timeout policy.
func New(opts Options) *Fetcher {
	client := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.RetryCount).
		SetRetryWaitTime(opts.RetryWaitTime).
		SetRetryMaxWaitTime(opts.RetryMaxWaitTime)
	return &Fetcher{client: client}
}

// Close releases the fetcher's transport resources.
func (f *Fetcher) Close() error {
	return f.client.Close()
}

// FetchSource ensures the source's file is present and hash-valid in dstDir.
// It returns the file's absolute path and its computed "algorithm:hex" spec.
//
// A file already present with a matching hash is not re-acquired. A present
// file with a mismatched hash is re-acquired when the action permits it;
// manual sources fail immediately since only the user can replace the file.
func (f *Fetcher) FetchSource(ctx context.Context, src *recipe.Source, dstDir string) (string, string, error) {
	logger := ctxlog.FromContext(ctx).With("source", src.Name)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return "", "", err
	}
	dst := filepath.Join(dstDir, src.TargetFileName())

	if _, err := os.Stat(dst); err == nil {
		if src.Hash == "" {
			computed, err := HashFile(dst, "sha256")
			if err != nil {
				return "", "", err
			}
			logger.Info("Source file exists, no declared hash to check.", "file", dst)
			return dst, "sha256:" + computed, nil
		}
		computed, err := VerifyFile(dst, src.Hash)
		var mismatch *HashMismatchError
		switch {
		case err == nil:
			logger.Info("Source file exists and hash is valid.", "file", dst)
			return dst, computed, nil
		case errors.As(err, &mismatch) && src.Action() != recipe.ActionMessage:
			logger.Warn("Source file exists but has a bad hash, re-acquiring.", "file", dst, "got", mismatch.Got)
		default:
			return "", "", err
		}
	}

	switch src.Action() {
	case recipe.ActionMessage:
		return "", "", &recipe.ManualStepError{Source: src.Name, Instructions: src.Message}
	case recipe.ActionCopy:
		return f.copyLocal(ctx, src, dst)
	default:
		return f.download(ctx, src, dst)
	}
}

// copyLocal ingests a file that already exists on the local filesystem.
func (f *Fetcher) copyLocal(ctx context.Context, src *recipe.Source, dst string) (string, string, error) {
	logger := ctxlog.FromContext(ctx)

	if _, err := os.Stat(src.SourceFile); err != nil {
		return "", "", &FetchError{URL: src.SourceFile, Err: err}
	}
	if err := fsutil.CopyFile(src.SourceFile, dst, 0o644); err != nil {
		return "", "", &FetchError{URL: src.SourceFile, Err: err}
	}
	logger.Info("Copied local source file.", "from", src.SourceFile, "to", dst)
	return f.verifyAcquired(src, dst)
}

// download fetches the source's URL with the configured retry policy and
// writes it to dst atomically.
func (f *Fetcher) download(ctx context.Context, src *recipe.Source, dst string) (string, string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Downloading source.", "url", src.URL, "file", dst)

	resp, err := f.client.R().SetContext(ctx).Get(src.URL)
	if err != nil {
		return "", "", &FetchError{URL: src.URL, Timeout: isTimeout(err), Err: err}
	}
	if !resp.IsSuccess() {
		return "", "", &FetchError{URL: src.URL, Err: fmt.Errorf("unexpected status: %s", resp.Status())}
	}

	if err := fsutil.WriteFileAtomic(dst, resp.Bytes(), 0o644); err != nil {
		return "", "", &FetchError{URL: src.URL, Err: err}
	}
	logger.Info("Download complete.", "file", dst, "bytes", len(resp.Bytes()))
	return f.verifyAcquired(src, dst)
}

// verifyAcquired checks a freshly acquired file against the declared hash.
// A mismatch deletes the file so no corrupt data is used downstream.
func (f *Fetcher) verifyAcquired(src *recipe.Source, dst string) (string, string, error) {
	if src.Hash == "" {
		computed, err := HashFile(dst, "sha256")
		if err != nil {
			return "", "", err
		}
		return dst, "sha256:" + computed, nil
	}
	computed, err := VerifyFile(dst, src.Hash)
	if err != nil {
		var mismatch *HashMismatchError
		if errors.As(err, &mismatch) {
			os.Remove(dst)
		}
		return "", "", err
	}
	return dst, computed, nil
}

// isTimeout classifies transport errors so that timeouts surface as a
// distinct FetchError flavor.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
