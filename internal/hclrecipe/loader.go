// Package hclrecipe loads declarative recipe definitions from .hcl files and
// registers them into the catalog. Recipe files are the authoring surface;
// the catalog manifest remains the persisted source of truth.
package hclrecipe

import (
	"context"
	"fmt"
	"reflect"
	"sort"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/specialistvlad/datasetgo/internal/catalog"
	"github.com/specialistvlad/datasetgo/internal/ctxlog"
	"github.com/specialistvlad/datasetgo/internal/fsutil"
	"github.com/specialistvlad/datasetgo/internal/recipe"
)

type fileSchema struct {
	Recipes []*recipeBlock `hcl:"recipe,block"`
}

type recipeBlock struct {
	Name        string          `hcl:"name,label"`
	Description string          `hcl:"description,optional"`
	License     string          `hcl:"license,optional"`
	Sources     []*sourceBlock  `hcl:"source,block"`
	Transform   *transformBlock `hcl:"transform,block"`
}

type sourceBlock struct {
	Name       string `hcl:"name,label"`
	URL        string `hcl:"url,optional"`
	SourceFile string `hcl:"source_file,optional"`
	Message    string `hcl:"message,optional"`
	FileName   string `hcl:"file_name,optional"`
	Hash       string `hcl:"hash,optional"`
	Unpack     bool   `hcl:"unpack,optional"`
}

type transformBlock struct {
	Name    string    `hcl:"name"`
	Options cty.Value `hcl:"options,optional"`
}

// LoadDir parses every .hcl file under dir (recursively) and returns the
// recipes they define, validated but not yet registered.
func LoadDir(ctx context.Context, dir string) ([]*recipe.Recipe, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Loading recipe definitions...", "path", dir)

	filePaths, err := fsutil.FindFilesByExtension(dir, ".hcl")
	if err != nil {
		logger.Error("Failed to walk recipe directory", "path", dir, "error", err)
		return nil, err
	}
	if len(filePaths) == 0 {
		logger.Debug("No .hcl recipe files found in path", "path", dir)
		return nil, nil
	}
	sort.Strings(filePaths)

	parser := hclparse.NewParser()
	var recipes []*recipe.Recipe
	seen := make(map[string]string) // recipe name -> defining file

	for _, filePath := range filePaths {
		hclFile, diags := parser.ParseHCLFile(filePath)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse recipe file %s: %w", filePath, diags)
		}

		var schema fileSchema
		if diags := gohcl.DecodeBody(hclFile.Body, nil, &schema); diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode recipe file %s: %w", filePath, diags)
		}

		for _, block := range schema.Recipes {
			r, err := blockToRecipe(block)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", filePath, err)
			}
			if prev, dup := seen[r.Name]; dup {
				return nil, fmt.Errorf("recipe %q defined in both %s and %s", r.Name, prev, filePath)
			}
			seen[r.Name] = filePath
			recipes = append(recipes, r)
		}
		logger.Debug("Loaded recipe definitions from file.", "file", filePath)
	}

	logger.Info("Recipe definitions loaded.", "files", len(filePaths), "recipes", len(recipes))
	return recipes, nil
}

// RegisterAll registers loaded recipes into the catalog. A recipe already
// registered with identical content is skipped, keeping repeated startups
// idempotent; a name collision with different content is an error because
// catalog entries are append-only.
func RegisterAll(ctx context.Context, cat *catalog.Catalog, recipes []*recipe.Recipe) error {
	logger := ctxlog.FromContext(ctx)

	registered := 0
	for _, r := range recipes {
		if cat.Has(r.Name) {
			existing, err := cat.Get(r.Name)
			if err != nil {
				return err
			}
			if reflect.DeepEqual(existing, r) {
				logger.Debug("Recipe already registered, skipping.", "name", r.Name)
				continue
			}
			return fmt.Errorf("recipe %q differs from its registered version; register the new variant under a new name", r.Name)
		}
		if err := cat.Register(r.Name, r); err != nil {
			return err
		}
		registered++
	}

	if registered > 0 {
		logger.Info("New recipes registered into catalog.", "count", registered)
	}
	return nil
}

func blockToRecipe(block *recipeBlock) (*recipe.Recipe, error) {
	r := &recipe.Recipe{
		Name:        block.Name,
		Description: block.Description,
		License:     block.License,
	}
	for _, src := range block.Sources {
		r.Sources = append(r.Sources, recipe.Source{
			Name:       src.Name,
			URL:        src.URL,
			SourceFile: src.SourceFile,
			Message:    src.Message,
			FileName:   src.FileName,
			Hash:       src.Hash,
			Unpack:     src.Unpack,
		})
	}
	if block.Transform == nil {
		return nil, fmt.Errorf("recipe %q: missing transform block", block.Name)
	}
	options, err := optionsToStrings(block.Transform.Options)
	if err != nil {
		return nil, fmt.Errorf("recipe %q: %w", block.Name, err)
	}
	r.Transform = recipe.Transform{
		Name:    block.Transform.Name,
		Options: options,
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// optionsToStrings converts the transform's options object into the string
// map persisted in the catalog manifest. Primitive values are accepted and
// stringified; anything structured is rejected.
func optionsToStrings(options cty.Value) (map[string]string, error) {
	if options == cty.NilVal || options.IsNull() {
		return nil, nil
	}
	if !options.Type().IsObjectType() && !options.Type().IsMapType() {
		return nil, fmt.Errorf("transform options must be an object, got %s", options.Type().FriendlyName())
	}

	out := make(map[string]string)
	for key, val := range options.AsValueMap() {
		strVal, err := convert.Convert(val, cty.String)
		if err != nil {
			return nil, fmt.Errorf("transform option %q: %w", key, err)
		}
		if strVal.IsNull() {
			continue
		}
		out[key] = strVal.AsString()
	}
	// An empty options block normalizes to nil so a recipe round-trips
	// unchanged through the manifest, which omits empty option maps.
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}
