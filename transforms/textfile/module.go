// Package textfile provides the 'text_file' transform: it reads each
// verified raw file as UTF-8 text and exposes the contents keyed by source
// name. It is the simplest useful transform and doubles as a passthrough for
// recipes whose payload is already in its final form.
package textfile

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/specialistvlad/datasetgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Run is the handler for the 'text_file' transform.
func Run(ctx context.Context, in *registry.Input) (*registry.Output, error) {
	trim := in.Options["trim"] == "true"

	data := make(map[string]string, len(in.RawFiles))
	for name, path := range in.RawFiles {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source %q: %w", name, err)
		}
		text := string(content)
		if trim {
			text = strings.TrimSpace(text)
		}
		data[name] = text
	}

	return &registry.Output{Data: data}, nil
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("text_file", Run)
}
