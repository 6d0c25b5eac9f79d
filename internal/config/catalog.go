package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Collection is one searchable catalog collection. Each becomes a retrieval strategy.
type Collection struct {
	Name        string `yaml:"name"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
}

type Catalog struct {
	Collections []Collection `yaml:"collections"`
}

func LoadCatalog(path string) (Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.Unmarshal(raw, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("parse catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(catalog.Collections))
	for i := range catalog.Collections {
		c := &catalog.Collections[i]
		c.Name = strings.TrimSpace(c.Name)
		c.Title = strings.TrimSpace(c.Title)
		c.Description = strings.TrimSpace(c.Description)
		if c.Name == "" {
			return Catalog{}, fmt.Errorf("catalog collection %d: name is required", i+1)
		}
		if _, dup := seen[c.Name]; dup {
			return Catalog{}, fmt.Errorf("catalog collection %q declared twice", c.Name)
		}
		seen[c.Name] = struct{}{}
		if c.Title == "" {
			c.Title = c.Name
		}
	}
	return catalog, nil
}
