// Package registry holds the named transform functions that recipes
// reference. Transform modules register themselves at startup; the registry
// is read-only afterwards.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/specialistvlad/datasetgo/internal/catalog"
	"github.com/specialistvlad/datasetgo/internal/ctxlog"
)

// Input is what a transform function receives: the verified raw inputs of
// one recipe plus its declared options.
type Input struct {
	// Dataset is the name of the dataset being built.
	Dataset string
	// RawFiles maps source names to the absolute paths of their verified
	// files in the raw directory.
	RawFiles map[string]string
	// InterimDir holds unpacked archive contents for sources that declared
	// unpack. Empty when nothing was unpacked.
	InterimDir string
	// Options are the recipe's transform options.
	Options map[string]string
}

// Output is what a transform function produces. Data and Target are
// marshaled to JSON by the builder; Extra lands in the dataset's generic
// metadata.
type Output struct {
	Data   any
	Target any
	Extra  map[string]string
}

// TransformFunc consumes verified raw inputs and produces the dataset payload.
type TransformFunc func(ctx context.Context, in *Input) (*Output, error)

// Module is the interface transform modules implement to be registered.
type Module interface {
	Register(r *Registry)
}

// Registry maps transform names to their Go implementations.
type Registry struct {
	mu         sync.RWMutex
	transforms map[string]TransformFunc
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{transforms: make(map[string]TransformFunc)}
}

// RegisterTransform adds a named transform. Duplicate registration is a
// programmer error and panics at startup.
func (r *Registry) RegisterTransform(name string, fn TransformFunc) {
	if name == "" || fn == nil {
		panic("registry: transform registration requires a name and a function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.transforms[name]; dup {
		panic(fmt.Sprintf("registry: transform %q registered twice", name))
	}
	r.transforms[name] = fn
}

// Transform looks up a registered transform by name.
func (r *Registry) Transform(name string) (TransformFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.transforms[name]
	return fn, ok
}

// Names returns all registered transform names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.transforms))
	for name := range r.transforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate performs a parity check between the catalog and the registered Go
// handlers: every recipe's transform must resolve to a registered function.
func (r *Registry) Validate(ctx context.Context, cat *catalog.Catalog) error {
	logger := ctxlog.FromContext(ctx)

	var errs []string
	for name := range cat.List() {
		rcp, err := cat.Get(name)
		if err != nil {
			return err
		}
		if _, ok := r.Transform(rcp.Transform.Name); !ok {
			errs = append(errs, fmt.Sprintf("recipe %q: transform %q has no registered Go handler (available: %s)",
				name, rcp.Transform.Name, strings.Join(r.Names(), ", ")))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("registry validation failed:\n- %s", strings.Join(errs, "\n- "))
	}

	logger.Debug("Registry validation passed.", "transforms", len(r.transforms), "recipes", cat.Len())
	return nil
}
