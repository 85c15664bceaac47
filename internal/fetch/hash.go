package fetch

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"sort"
	"strings"
)

// hashConstructors maps algorithm names to their hash constructors.
// md5 and sha1 are kept for verifying published digests of existing
// datasets, not for new integrity guarantees.
var hashConstructors = map[string]func() hash.Hash{
	"md5":    md5.New,
	"sha1":   sha1.New,
	"sha256": sha256.New,
}

// AvailableHashes returns the supported hash algorithm names.
func AvailableHashes() []string {
	names := make([]string, 0, len(hashConstructors))
	for name := range hashConstructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HashMismatchError reports that verified content does not match the digest
// declared by the recipe. It is never retried automatically: a mismatch
// indicates a content or recipe problem, not a transient failure.
type HashMismatchError struct {
	File      string
	Algorithm string
	Want      string
	Got       string
}

// Error implements the error interface.
func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("hash mismatch for %s: %s:%s != expected %s:%s",
		e.File, e.Algorithm, e.Got, e.Algorithm, e.Want)
}

// ParseHashSpec splits an "algorithm:hexdigest" declaration.
func ParseHashSpec(spec string) (algorithm, digest string, err error) {
	algorithm, digest, ok := strings.Cut(spec, ":")
	if !ok {
		return "", "", fmt.Errorf("invalid hash spec %q: want \"algorithm:hexdigest\"", spec)
	}
	if _, known := hashConstructors[algorithm]; !known {
		return "", "", fmt.Errorf("unsupported hash algorithm %q (available: %s)",
			algorithm, strings.Join(AvailableHashes(), ", "))
	}
	return algorithm, strings.ToLower(digest), nil
}

// HashFile computes the hex digest of the file at path using algorithm.
func HashFile(path, algorithm string) (string, error) {
	newHash, ok := hashConstructors[algorithm]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}

	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := newHash()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes computes the hex digest of data using algorithm.
func HashBytes(data []byte, algorithm string) (string, error) {
	newHash, ok := hashConstructors[algorithm]
	if !ok {
		return "", fmt.Errorf("unsupported hash algorithm %q", algorithm)
	}
	h := newHash()
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyFile checks the file at path against the declared "algorithm:hex"
// spec. It returns the computed spec string, and a HashMismatchError when
// the digests differ.
func VerifyFile(path, spec string) (string, error) {
	algorithm, want, err := ParseHashSpec(spec)
	if err != nil {
		return "", err
	}
	got, err := HashFile(path, algorithm)
	if err != nil {
		return "", err
	}
	computed := algorithm + ":" + got
	if got != want {
		return computed, &HashMismatchError{
			File:      path,
			Algorithm: algorithm,
			Want:      want,
			Got:       got,
		}
	}
	return computed, nil
}
