// Package dataset defines the immutable result bundle a build produces:
// an opaque processed payload, an optional target, and metadata with
// canonical accessors. Datasets are persisted to the processed directory
// with a sidecar metadata file so metadata can be inspected without
// loading the payload.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/specialistvlad/datasetgo/internal/fetch"
	"github.com/specialistvlad/datasetgo/internal/fsutil"
)

// Reserved metadata digest keys recorded at construction time.
const (
	DataHashKey   = "data"
	TargetHashKey = "target"
)

// Metadata describes a dataset: provenance, licensing, and the hash
// manifest of its inputs and payload.
type Metadata struct {
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	License     string            `json:"license,omitempty"`
	// Hashes maps source file names (and the reserved data/target keys)
	// to "algorithm:hexdigest" specs.
	Hashes map[string]string `json:"hashes,omitempty"`
	// Manifest lists extra files persisted alongside the dataset.
	Manifest []string          `json:"manifest,omitempty"`
	Extra    map[string]string `json:"extra,omitempty"`
}

// Dataset is the immutable bundle returned by a successful build. It has no
// mutation API; a different dataset must be built under a new recipe/name.
type Dataset struct {
	meta   Metadata
	data   json.RawMessage
	target json.RawMessage
}

// New constructs a Dataset, recording digests of data and target in the
// metadata hash manifest. The inputs are copied so later caller mutations
// cannot leak in.
func New(meta Metadata, data, target json.RawMessage) (*Dataset, error) {
	if meta.Name == "" {
		return nil, fmt.Errorf("dataset requires a name")
	}

	m := cloneMetadata(meta)
	if m.Hashes == nil {
		m.Hashes = make(map[string]string)
	}

	dataHash, err := fetch.HashBytes(data, "sha256")
	if err != nil {
		return nil, err
	}
	m.Hashes[DataHashKey] = "sha256:" + dataHash
	if target != nil {
		targetHash, err := fetch.HashBytes(target, "sha256")
		if err != nil {
			return nil, err
		}
		m.Hashes[TargetHashKey] = "sha256:" + targetHash
	}

	return &Dataset{
		meta:   m,
		data:   append(json.RawMessage(nil), data...),
		target: append(json.RawMessage(nil), target...),
	}, nil
}

// Name returns the dataset name.
func (d *Dataset) Name() string { return d.meta.Name }

// Description returns the human-readable description.
func (d *Dataset) Description() string { return d.meta.Description }

// License returns the license text or identifier.
func (d *Dataset) License() string { return d.meta.License }

// Data returns the opaque processed payload.
func (d *Dataset) Data() json.RawMessage {
	return append(json.RawMessage(nil), d.data...)
}

// Target returns the optional target payload, nil when absent.
func (d *Dataset) Target() json.RawMessage {
	if d.target == nil {
		return nil
	}
	return append(json.RawMessage(nil), d.target...)
}

// HasTarget reports whether a target payload is present.
func (d *Dataset) HasTarget() bool { return d.target != nil }

// Hashes returns a copy of the hash manifest.
func (d *Dataset) Hashes() map[string]string {
	out := make(map[string]string, len(d.meta.Hashes))
	for k, v := range d.meta.Hashes {
		out[k] = v
	}
	return out
}

// Manifest returns a copy of the extra-file manifest.
func (d *Dataset) Manifest() []string {
	return append([]string(nil), d.meta.Manifest...)
}

// Meta looks up a generic metadata entry by key.
func (d *Dataset) Meta(key string) (string, bool) {
	v, ok := d.meta.Extra[key]
	return v, ok
}

// Metadata returns a copy of the full metadata record.
func (d *Dataset) Metadata() Metadata {
	return cloneMetadata(d.meta)
}

// envelope is the on-disk serialization of a full dataset.
type envelope struct {
	Metadata Metadata        `json:"metadata"`
	Data     json.RawMessage `json:"data"`
	Target   json.RawMessage `json:"target,omitempty"`
}

// Dump persists the dataset under dir as fileBase.dataset.json plus a
// fileBase.metadata.json sidecar. Both writes are atomic.
func (d *Dataset) Dump(dir, fileBase string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	metaData, err := json.MarshalIndent(d.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize metadata for %q: %w", d.meta.Name, err)
	}
	if err := fsutil.WriteFileAtomic(metadataPath(dir, fileBase), append(metaData, '\n'), 0o644); err != nil {
		return err
	}

	env := envelope{Metadata: d.meta, Data: d.data, Target: d.target}
	fullData, err := json.Marshal(&env)
	if err != nil {
		return fmt.Errorf("failed to serialize dataset %q: %w", d.meta.Name, err)
	}
	return fsutil.WriteFileAtomic(datasetPath(dir, fileBase), fullData, 0o644)
}

// Load reads a previously dumped dataset back verbatim.
func Load(dir, fileBase string) (*Dataset, error) {
	data, err := os.ReadFile(datasetPath(dir, fileBase))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to parse dataset file %s: %w", datasetPath(dir, fileBase), err)
	}
	return &Dataset{meta: env.Metadata, data: env.Data, target: env.Target}, nil
}

// LoadMetadata reads only the metadata sidecar, leaving the payload on disk.
func LoadMetadata(dir, fileBase string) (Metadata, error) {
	data, err := os.ReadFile(metadataPath(dir, fileBase))
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata file %s: %w", metadataPath(dir, fileBase), err)
	}
	return meta, nil
}

// Exists reports whether a dataset with fileBase is cached under dir.
func Exists(dir, fileBase string) bool {
	_, err := os.Stat(datasetPath(dir, fileBase))
	return err == nil
}

func datasetPath(dir, fileBase string) string {
	return filepath.Join(dir, fileBase+".dataset.json")
}

func metadataPath(dir, fileBase string) string {
	return filepath.Join(dir, fileBase+".metadata.json")
}

func cloneMetadata(meta Metadata) Metadata {
	m := meta
	if meta.Hashes != nil {
		m.Hashes = make(map[string]string, len(meta.Hashes))
		for k, v := range meta.Hashes {
			m.Hashes[k] = v
		}
	}
	m.Manifest = append([]string(nil), meta.Manifest...)
	if meta.Extra != nil {
		m.Extra = make(map[string]string, len(meta.Extra))
		for k, v := range meta.Extra {
			m.Extra[k] = v
		}
	}
	return m
}
