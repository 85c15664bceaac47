// Package catalog implements the append-only recipe registry, persisted as a
// single JSON manifest that is atomically rewritten on every mutation.
package catalog

import (
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"sync"
	"time"

	"github.com/specialistvlad/datasetgo/internal/fsutil"
	"github.com/specialistvlad/datasetgo/internal/recipe"
)

// NotFoundError reports an unknown dataset name.
type NotFoundError struct {
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("dataset %q not found in catalog", e.Name)
}

// DuplicateNameError reports an attempt to re-register an existing name.
// Callers must pick a new name or version instead of overwriting.
type DuplicateNameError struct {
	Name string
}

// Error implements the error interface.
func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("dataset %q is already registered", e.Name)
}

// manifestVersion guards against reading manifests written by a future
// incompatible format.
const manifestVersion = 1

// lockTimeout bounds how long a mutation waits on the manifest's advisory lock.
const lockTimeout = 5 * time.Second

type manifest struct {
	Version int              `json:"version"`
	Recipes []*recipe.Recipe `json:"recipes"`
}

// Catalog maps dataset names to recipes. All mutations are written through
// to the manifest file before they become visible to the caller.
type Catalog struct {
	mu           sync.RWMutex
	manifestPath string
	names        []string // registration order
	recipes      map[string]*recipe.Recipe
}

// Open loads the catalog backed by manifestPath, creating an empty one if
// the file does not exist yet.
func Open(manifestPath string) (*Catalog, error) {
	c := &Catalog{
		manifestPath: manifestPath,
		recipes:      make(map[string]*recipe.Recipe),
	}

	data, err := os.ReadFile(manifestPath)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog manifest %s: %w", manifestPath, err)
	}

	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse catalog manifest %s: %w", manifestPath, err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("catalog manifest %s has unsupported version %d", manifestPath, m.Version)
	}
	for _, r := range m.Recipes {
		if _, dup := c.recipes[r.Name]; dup {
			return nil, fmt.Errorf("catalog manifest %s contains duplicate entry %q", manifestPath, r.Name)
		}
		c.names = append(c.names, r.Name)
		c.recipes[r.Name] = r
	}
	return c, nil
}

// ManifestPath returns the location of the backing manifest file.
func (c *Catalog) ManifestPath() string {
	return c.manifestPath
}

// Len returns the number of registered recipes.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}

// Has reports whether name is registered.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.recipes[name]
	return ok
}

// Get returns the recipe registered under name.
func (c *Catalog) Get(name string) (*recipe.Recipe, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.recipes[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	// Registered recipes are append-only; hand out a copy so callers
	// cannot mutate the catalog through the returned pointer.
	return r.Clone(), nil
}

// Register adds a new recipe under name. The manifest is rewritten before
// the entry becomes visible; a duplicate name leaves both the catalog and
// the manifest untouched.
func (c *Catalog) Register(name string, r *recipe.Recipe) error {
	if name == "" {
		return fmt.Errorf("cannot register a recipe with an empty name")
	}
	if r.Name == "" {
		r.Name = name
	}
	if r.Name != name {
		return fmt.Errorf("recipe name %q does not match registration name %q", r.Name, name)
	}
	if err := r.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.recipes[name]; dup {
		return &DuplicateNameError{Name: name}
	}

	c.names = append(c.names, name)
	c.recipes[name] = r.Clone()
	if err := c.persistLocked(); err != nil {
		// Write-through failed: roll back the in-memory mutation so the
		// catalog and manifest stay consistent.
		c.names = c.names[:len(c.names)-1]
		delete(c.recipes, name)
		return err
	}
	return nil
}

// List returns a lazy, restartable sequence of registered names in
// registration order. Each range over the sequence observes a consistent
// snapshot taken when iteration starts.
func (c *Catalog) List() iter.Seq[string] {
	return func(yield func(string) bool) {
		c.mu.RLock()
		snapshot := make([]string, len(c.names))
		copy(snapshot, c.names)
		c.mu.RUnlock()

		for _, name := range snapshot {
			if !yield(name) {
				return
			}
		}
	}
}

// persistLocked rewrites the manifest under an advisory lock. Concurrent
// processes reading the manifest never observe a partial write because the
// new content is staged in full and renamed into place.
func (c *Catalog) persistLocked() error {
	m := manifest{Version: manifestVersion}
	for _, name := range c.names {
		m.Recipes = append(m.Recipes, c.recipes[name])
	}

	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize catalog manifest: %w", err)
	}
	data = append(data, '\n')

	lock, err := fsutil.AcquireLock(c.manifestPath+".lock", lockTimeout)
	if err != nil {
		return err
	}
	defer lock.Release()

	return fsutil.WriteFileAtomic(c.manifestPath, data, 0o644)
}
