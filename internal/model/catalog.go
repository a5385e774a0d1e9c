package model

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// CatalogEntry maps a permission name to its backend id.
type CatalogEntry struct {
	Name Permission `yaml:"name" json:"name"`
	ID   int        `yaml:"id" json:"id"`
}

// CatalogCategory groups permissions for display.
type CatalogCategory struct {
	Name        string         `yaml:"name" json:"category"`
	Permissions []CatalogEntry `yaml:"permissions" json:"permissions"`
}

// Catalog is the backend's permission catalog. It is schema data owned by
// the backend, loaded from configuration rather than hardcoded in logic.
type Catalog struct {
	Categories []CatalogCategory `yaml:"categories" json:"categories"`

	ids        map[Permission]int
	categories map[Permission]string
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("model: embedded permission catalog is invalid: %v", err))
	}
	return c
}

// LoadCatalog reads a catalog file, or returns the embedded one when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read permission catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and indexes a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode permission catalog: %w", err)
	}

	c.ids = make(map[Permission]int)
	c.categories = make(map[Permission]string)
	seenIDs := make(map[int]Permission)
	for _, cat := range c.Categories {
		for _, e := range cat.Permissions {
			if e.Name == "" || e.ID <= 0 {
				return nil, fmt.Errorf("permission catalog: invalid entry %q in %s", e.Name, cat.Name)
			}
			if _, dup := c.ids[e.Name]; dup {
				return nil, fmt.Errorf("permission catalog: duplicate permission %s", e.Name)
			}
			if other, dup := seenIDs[e.ID]; dup {
				return nil, fmt.Errorf("permission catalog: id %d used by %s and %s", e.ID, other, e.Name)
			}
			seenIDs[e.ID] = e.Name
			c.ids[e.Name] = e.ID
			c.categories[e.Name] = cat.Name
		}
	}
	return &c, nil
}

// ID returns the backend id of a permission.
func (c *Catalog) ID(p Permission) (int, bool) {
	id, ok := c.ids[p]
	return id, ok
}

// Category returns the display category of a permission.
func (c *Catalog) Category(p Permission) string {
	return c.categories[p]
}

// Permissions lists every permission in catalog order.
func (c *Catalog) Permissions() []Permission {
	var out []Permission
	for _, cat := range c.Categories {
		for _, e := range cat.Permissions {
			out = append(out, e.Name)
		}
	}
	return out
}
