// Package catalog serves the static model list for the models endpoint.
// The built-in defaults can be replaced by a YAML file so deployments
// can advertise their own model set without a rebuild.
package catalog

import (
	"fmt"
	"os"
	"sort"
	"time"

	"gopkg.in/yaml.v3"

	"modelgate/internal/core"
	"modelgate/internal/resolver"
)

// entry is one model row in the YAML catalog file.
type entry struct {
	ID      string `yaml:"id"`
	OwnedBy string `yaml:"owned_by"`
}

type catalogFile struct {
	Models []entry `yaml:"models"`
}

// Catalog is an immutable model list.
type Catalog struct {
	models  []core.Model
	created int64
}

// defaults are the models advertised out of the box.
var defaults = []entry{
	{ID: "google/gemini-2.5-pro", OwnedBy: resolver.ProviderGoogle},
	{ID: "google/gemini-2.5-flash", OwnedBy: resolver.ProviderGoogle},
	{ID: "google/gemini-2.0-flash", OwnedBy: resolver.ProviderGoogle},
	{ID: "xai/grok-4", OwnedBy: resolver.ProviderXAI},
	{ID: "xai/grok-3", OwnedBy: resolver.ProviderXAI},
	{ID: "xai/grok-3-mini", OwnedBy: resolver.ProviderXAI},
	{ID: "gigachat/GigaChat-2-Max", OwnedBy: resolver.ProviderGigaChat},
	{ID: "gigachat/GigaChat-2-Pro", OwnedBy: resolver.ProviderGigaChat},
	{ID: "gigachat/GigaChat-2", OwnedBy: resolver.ProviderGigaChat},
	{ID: "perplexity/sonar", OwnedBy: resolver.ProviderPerplexity},
	{ID: "perplexity/sonar-pro", OwnedBy: resolver.ProviderPerplexity},
	{ID: "perplexity/sonar-reasoning", OwnedBy: resolver.ProviderPerplexity},
}

// New builds a catalog from the built-in defaults.
func New() *Catalog {
	return build(defaults)
}

// Load builds a catalog from a YAML file of the form
// "models: [{id: ..., owned_by: ...}]".
func Load(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model catalog: %w", err)
	}
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse model catalog: %w", err)
	}
	if len(file.Models) == 0 {
		return nil, fmt.Errorf("model catalog %s lists no models", path)
	}
	for i, e := range file.Models {
		if e.ID == "" {
			return nil, fmt.Errorf("model catalog %s: entry %d has no id", path, i)
		}
	}
	return build(file.Models), nil
}

func build(entries []entry) *Catalog {
	created := time.Now().Unix()
	models := make([]core.Model, 0, len(entries))
	for _, e := range entries {
		ownedBy := e.OwnedBy
		if ownedBy == "" {
			if res, err := resolver.Resolve(e.ID); err == nil {
				ownedBy = res.Provider
			} else {
				ownedBy = "system"
			}
		}
		models = append(models, core.Model{
			ID:      e.ID,
			Object:  "model",
			OwnedBy: ownedBy,
			Created: created,
		})
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return &Catalog{models: models, created: created}
}

// List returns the models response body.
func (c *Catalog) List() core.ModelsResponse {
	return core.ModelsResponse{Object: "list", Data: c.models}
}

// Contains reports whether id is in the catalog.
func (c *Catalog) Contains(id string) bool {
	for _, m := range c.models {
		if m.ID == id {
			return true
		}
	}
	return false
}
