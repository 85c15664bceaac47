// Package paths provides the project-level Path Set: a small set of named
// filesystem locations persisted to an INI file as interpolated expressions
// (e.g. "${project_path}/data") so that relocating the project only requires
// changing the root.
//
// Only the raw interpolated form is ever written to disk; resolution to
// absolute paths happens on read. The reserved catalog_path key is supplied
// at load time, is never persisted, and cannot be overwritten.
package paths

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"gopkg.in/ini.v1"

	"github.com/specialistvlad/datasetgo/internal/fsutil"
)

// CatalogPathKey is the reserved, read-only entry pointing at the directory
// holding the catalog manifest and this store's own backing file.
const CatalogPathKey = "catalog_path"

// Section is the INI section holding the Path Set.
const Section = "Paths"

// ConfigError reports a malformed path configuration: an undefined reference
// or a reference cycle.
type ConfigError struct {
	Key    string
	Reason string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("path config error for %q: %s", e.Key, e.Reason)
}

// ProtectedKeyError reports an attempt to overwrite a reserved key.
type ProtectedKeyError struct {
	Key string
}

// Error implements the error interface.
func (e *ProtectedKeyError) Error() string {
	return fmt.Sprintf("%s is write-protected", e.Key)
}

var refPattern = regexp.MustCompile(`\$\{([A-Za-z0-9_]+)\}`)

// Store is a disk-backed mapping from symbolic path name to interpolated
// expression. Mutations are written through to the backing INI file
// immediately and atomically.
type Store struct {
	mu          sync.RWMutex
	configFile  string
	catalogPath string
	keys        []string // insertion order, for stable serialization
	raw         map[string]string
	persistent  bool
}

// Open loads (or creates) the Path Set backed by configFile. catalogPath
// becomes the value of the reserved catalog_path key. Entries in defaults
// are added only if the backing file does not already define them.
func Open(configFile string, defaults map[string]string) (*Store, error) {
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, err
	}

	s := &Store{
		configFile:  abs,
		catalogPath: filepath.Dir(abs),
		raw:         make(map[string]string),
		persistent:  true,
	}

	if _, err := os.Stat(abs); err == nil {
		f, err := ini.Load(abs)
		if err != nil {
			return nil, fmt.Errorf("failed to parse path config %s: %w", abs, err)
		}
		for _, key := range f.Section(Section).Keys() {
			if key.Name() == CatalogPathKey {
				// Stale copies of the reserved key are dropped on load.
				continue
			}
			s.keys = append(s.keys, key.Name())
			s.raw[key.Name()] = key.Value()
		}
	}

	// Defaults fill gaps only; values already on disk win.
	names := make([]string, 0, len(defaults))
	for name := range defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := s.raw[name]; !ok && name != CatalogPathKey {
			s.keys = append(s.keys, name)
			s.raw[name] = defaults[name]
		}
	}

	if err := s.persist(); err != nil {
		return nil, err
	}
	return s, nil
}

// CatalogPath returns the absolute location of the catalog directory.
func (s *Store) CatalogPath() string {
	return s.catalogPath
}

// ConfigFile returns the absolute location of the backing INI file.
func (s *Store) ConfigFile() string {
	return s.configFile
}

// Keys returns all symbolic names, reserved key included, in a stable order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.keys)+1)
	out = append(out, CatalogPathKey)
	out = append(out, s.keys...)
	return out
}

// Raw returns the unexpanded expression stored for key.
func (s *Store) Raw(key string) (string, bool) {
	if key == CatalogPathKey {
		return s.catalogPath, true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.raw[key]
	return v, ok
}

// Resolve expands key to an absolute, cleaned filesystem path, following
// nested ${name} references. Undefined references and cycles yield a
// ConfigError.
func (s *Store) Resolve(key string) (string, error) {
	s.mu.RLock()
	expanded, err := s.expand(key, map[string]bool{})
	s.mu.RUnlock()
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(expanded) {
		abs, err := filepath.Abs(expanded)
		if err != nil {
			return "", err
		}
		expanded = abs
	}
	return filepath.Clean(expanded), nil
}

// expand substitutes ${name} references recursively. visiting tracks the
// active expansion chain for cycle detection. Callers hold at least a read lock.
func (s *Store) expand(key string, visiting map[string]bool) (string, error) {
	if key == CatalogPathKey {
		return s.catalogPath, nil
	}
	if visiting[key] {
		return "", &ConfigError{Key: key, Reason: "reference cycle detected"}
	}
	value, ok := s.raw[key]
	if !ok {
		return "", &ConfigError{Key: key, Reason: "undefined path name"}
	}

	visiting[key] = true
	defer delete(visiting, key)

	var expandErr error
	result := refPattern.ReplaceAllStringFunc(value, func(match string) string {
		if expandErr != nil {
			return ""
		}
		ref := refPattern.FindStringSubmatch(match)[1]
		sub, err := s.expand(ref, visiting)
		if err != nil {
			expandErr = err
			return ""
		}
		return sub
	})
	if expandErr != nil {
		return "", expandErr
	}
	return result, nil
}

// Set updates the expression stored for key and persists the change.
// The reserved catalog_path key cannot be set.
func (s *Store) Set(key, value string) error {
	if key == CatalogPathKey {
		return &ProtectedKeyError{Key: key}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.raw[key]; !exists {
		s.keys = append(s.keys, key)
	}
	s.raw[key] = value
	return s.persistLocked()
}

// Delete removes key from the store and persists the change.
func (s *Store) Delete(key string) error {
	if key == CatalogPathKey {
		return &ProtectedKeyError{Key: key}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.raw[key]; !exists {
		return &ConfigError{Key: key, Reason: "undefined path name"}
	}
	delete(s.raw, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return s.persistLocked()
}

func (s *Store) persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

// persistLocked serializes the raw expressions back to the INI file. The
// reserved key is deliberately excluded to keep the file portable across
// machines. Callers hold the write lock.
func (s *Store) persistLocked() error {
	if !s.persistent {
		return nil
	}
	f := ini.Empty()
	sec, err := f.NewSection(Section)
	if err != nil {
		return err
	}
	for _, key := range s.keys {
		if _, err := sec.NewKey(key, s.raw[key]); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(s.configFile), 0o755); err != nil {
		return err
	}
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fmt.Errorf("failed to serialize path config: %w", err)
	}
	return fsutil.WriteFileAtomic(s.configFile, buf.Bytes(), 0o644)
}
