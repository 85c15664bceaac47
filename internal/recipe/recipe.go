// Package recipe defines the declarative description of how a named dataset
// is produced: the raw sources to acquire and the transform that turns them
// into the final data bundle.
package recipe

import (
	"fmt"
	"strings"
)

// Action describes how a raw source is acquired.
type Action string

const (
	// ActionURL downloads the source from a remote URL.
	ActionURL Action = "url"
	// ActionCopy ingests a file already present on the local filesystem.
	ActionCopy Action = "copy"
	// ActionMessage requires manual acquisition. The build halts and the
	// source's message is presented to the user.
	ActionMessage Action = "message"
)

// Source declares one raw input of a recipe. Exactly one of URL, SourceFile,
// or Message must be set; it determines the acquisition action.
type Source struct {
	Name       string `json:"name"`
	URL        string `json:"url,omitempty"`
	SourceFile string `json:"source_file,omitempty"`
	Message    string `json:"message,omitempty"`
	// FileName is the name of the file placed in the raw directory. When
	// empty it defaults to the last component of the URL.
	FileName string `json:"file_name,omitempty"`
	// Hash is the expected content digest in "algorithm:hexdigest" form.
	Hash string `json:"hash,omitempty"`
	// Unpack extracts the fetched file into the interim directory.
	Unpack bool `json:"unpack,omitempty"`
}

// Action reports the acquisition action implied by the populated fields.
func (s *Source) Action() Action {
	switch {
	case s.URL != "":
		return ActionURL
	case s.SourceFile != "":
		return ActionCopy
	default:
		return ActionMessage
	}
}

// TargetFileName is the file name the source occupies in the raw directory.
func (s *Source) TargetFileName() string {
	if s.FileName != "" {
		return s.FileName
	}
	if s.URL != "" {
		parts := strings.Split(strings.TrimRight(s.URL, "/"), "/")
		return parts[len(parts)-1]
	}
	if s.SourceFile != "" {
		parts := strings.Split(s.SourceFile, "/")
		return parts[len(parts)-1]
	}
	return s.Name
}

// Transform names the registered transform function that consumes the
// verified raw inputs, plus its options.
type Transform struct {
	Name    string            `json:"name"`
	Options map[string]string `json:"options,omitempty"`
}

// Recipe describes how to produce one named dataset. Recipes are registered
// once and never edited in place; a changed recipe is a new catalog entry
// under a new name or version.
type Recipe struct {
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	License     string    `json:"license,omitempty"`
	Sources     []Source  `json:"sources"`
	Transform   Transform `json:"transform"`
}

// Clone returns a deep copy, so callers cannot mutate registered recipes.
func (r *Recipe) Clone() *Recipe {
	out := *r
	out.Sources = append([]Source(nil), r.Sources...)
	if r.Transform.Options != nil {
		out.Transform.Options = make(map[string]string, len(r.Transform.Options))
		for k, v := range r.Transform.Options {
			out.Transform.Options[k] = v
		}
	}
	return &out
}

// Validate checks the structural integrity of the recipe.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe has no name")
	}
	if r.Transform.Name == "" {
		return fmt.Errorf("recipe %q: no transform declared", r.Name)
	}
	seen := make(map[string]struct{}, len(r.Sources))
	for i := range r.Sources {
		src := &r.Sources[i]
		if src.Name == "" {
			return fmt.Errorf("recipe %q: source %d has no name", r.Name, i)
		}
		if _, dup := seen[src.Name]; dup {
			return fmt.Errorf("recipe %q: duplicate source name %q", r.Name, src.Name)
		}
		seen[src.Name] = struct{}{}

		set := 0
		for _, v := range []string{src.URL, src.SourceFile, src.Message} {
			if v != "" {
				set++
			}
		}
		if set != 1 {
			return fmt.Errorf("recipe %q: source %q must set exactly one of url, source_file, or message", r.Name, src.Name)
		}
		if src.Action() == ActionMessage && src.Hash == "" {
			return fmt.Errorf("recipe %q: manual source %q requires a hash to verify the supplied file", r.Name, src.Name)
		}
	}
	return nil
}

// ManualStepError signals that a source requires manual acquisition before
// the build can proceed.
type ManualStepError struct {
	Source       string
	Instructions string
}

// Error implements the error interface.
func (e *ManualStepError) Error() string {
	return fmt.Sprintf("source %q requires manual acquisition: %s", e.Source, e.Instructions)
}
