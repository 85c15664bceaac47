// Package csvtable provides the 'csv_table' transform: it parses a raw CSV
// file into a header plus row records, optionally splitting one column out
// as the target vector.
package csvtable

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"slices"

	"github.com/specialistvlad/datasetgo/internal/registry"
)

// Module implements the registry.Module interface for this package.
type Module struct{}

// Table is the parsed payload: column names plus row-major string records.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Run is the handler for the 'csv_table' transform.
//
// Options:
//
//	file          source name to parse (required when the recipe has
//	              several sources)
//	delimiter     single-character field separator, default ","
//	target_column column name moved out of the rows into the target payload
func Run(ctx context.Context, in *registry.Input) (*registry.Output, error) {
	path, err := pickSource(in)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv source: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	if d := in.Options["delimiter"]; d != "" {
		runes := []rune(d)
		if len(runes) != 1 {
			return nil, fmt.Errorf("delimiter must be a single character, got %q", d)
		}
		reader.Comma = runes[0]
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv source %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv source %s is empty", path)
	}

	table := Table{Columns: records[0], Rows: records[1:]}

	targetCol := in.Options["target_column"]
	if targetCol == "" {
		return &registry.Output{Data: table}, nil
	}

	idx := slices.Index(table.Columns, targetCol)
	if idx < 0 {
		return nil, fmt.Errorf("target column %q not found in csv header %v", targetCol, table.Columns)
	}

	target := make([]string, 0, len(table.Rows))
	rows := make([][]string, 0, len(table.Rows))
	for _, row := range table.Rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("row has %d fields, target column %q is at index %d", len(row), targetCol, idx)
		}
		target = append(target, row[idx])
		rows = append(rows, slices.Delete(slices.Clone(row), idx, idx+1))
	}
	table.Rows = rows
	table.Columns = slices.Delete(slices.Clone(table.Columns), idx, idx+1)

	return &registry.Output{
		Data:   table,
		Target: target,
		Extra:  map[string]string{"target_column": targetCol},
	}, nil
}

// pickSource resolves the options to a single raw file path.
func pickSource(in *registry.Input) (string, error) {
	if name := in.Options["file"]; name != "" {
		path, ok := in.RawFiles[name]
		if !ok {
			return "", fmt.Errorf("option file=%q does not match any source of dataset %q", name, in.Dataset)
		}
		return path, nil
	}
	if len(in.RawFiles) != 1 {
		return "", fmt.Errorf("dataset %q has %d sources, set the file option to pick one", in.Dataset, len(in.RawFiles))
	}
	for _, path := range in.RawFiles {
		return path, nil
	}
	return "", fmt.Errorf("dataset %q has no sources", in.Dataset)
}

// Register registers the handler with the engine.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterTransform("csv_table", Run)
}
