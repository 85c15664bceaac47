package fetch

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/specialistvlad/datasetgo/internal/ctxlog"
)

// Unpack extracts the archive at path into dstDir, choosing the format from
// the file extension. Plain files are copied through so callers can unpack
// unconditionally.
func Unpack(ctx context.Context, path, dstDir string) error {
	logger := ctxlog.FromContext(ctx)

	if err := os.MkdirAll(dstDir, 0o755); err != nil {
		return err
	}

	name := filepath.Base(path)
	switch {
	case strings.HasSuffix(name, ".zip"):
		logger.Info("Extracting zip archive.", "file", name, "dst", dstDir)
		return unpackZip(path, dstDir)
	case strings.HasSuffix(name, ".tar.gz"), strings.HasSuffix(name, ".tgz"):
		logger.Info("Extracting tar.gz archive.", "file", name, "dst", dstDir)
		return unpackTar(path, dstDir, true)
	case strings.HasSuffix(name, ".tar"):
		logger.Info("Extracting tar archive.", "file", name, "dst", dstDir)
		return unpackTar(path, dstDir, false)
	case strings.HasSuffix(name, ".gz"):
		logger.Info("Decompressing gzip file.", "file", name, "dst", dstDir)
		return unpackGzip(path, dstDir)
	default:
		logger.Info("No compression detected, copying.", "file", name, "dst", dstDir)
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(filepath.Join(dstDir, name), data, 0o644)
	}
}

// securePath joins name under dstDir, rejecting entries that would escape it.
func securePath(dstDir, name string) (string, error) {
	dst := filepath.Join(dstDir, name)
	if !strings.HasPrefix(dst, filepath.Clean(dstDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes destination directory", name)
	}
	return dst, nil
}

func unpackZip(path, dstDir string) error {
	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("failed to open zip %s: %w", path, err)
	}
	defer r.Close()

	for _, entry := range r.File {
		dst, err := securePath(dstDir, entry.Name)
		if err != nil {
			return err
		}
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return err
		}
		in, err := entry.Open()
		if err != nil {
			return err
		}
		err = writeStream(dst, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func unpackTar(path, dstDir string, gzipped bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var reader io.Reader = f
	if gzipped {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to open gzip stream %s: %w", path, err)
		}
		defer gz.Close()
		reader = gz
	}

	tr := tar.NewReader(reader)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read tar %s: %w", path, err)
		}
		dst, err := securePath(dstDir, hdr.Name)
		if err != nil {
			return err
		}
		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				return err
			}
			if err := writeStream(dst, tr); err != nil {
				return err
			}
		}
	}
}

func unpackGzip(path, dstDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("failed to open gzip stream %s: %w", path, err)
	}
	defer gz.Close()

	outName := strings.TrimSuffix(filepath.Base(path), ".gz")
	return writeStream(filepath.Join(dstDir, outName), gz)
}

func writeStream(dst string, r io.Reader) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
