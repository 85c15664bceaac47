// Package jsonfile provides the 'json_file' transform: it validates a raw
// JSON file and passes its document through as the dataset payload.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/specialistvlad/datasetgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'json_file' transform. With a single source the
// document itself becomes the payload; with several, the payload is a map of
// source name to document.
func Run(ctx context.Context, in *registry.Input) (*registry.Output, error) {
	docs := make(map[string]json.RawMessage, len(in.RawFiles))
	for name, path := range in.RawFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %q: %w", name, err)
		}
		if !json.Valid(content) {
			return nil, fmt.Errorf("source %q is not valid JSON", name)
		}
		docs[name] = json.RawMessage(content)
	}

	if len(docs) == 1 {
		for _, doc := range docs {
			return &registry.Output{Data: doc}, nil
		}
	}
	return &registry.Output{Data: docs}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("json_file", Run)
}
