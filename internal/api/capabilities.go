package api

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed assets/capabilities.yaml
var defaultCatalog []byte

// Catalog is the static capability menu shown in the sidebar.
type Catalog struct {
	Network  string           `yaml:"network" json:"network"`
	Sections []CatalogSection `yaml:"sections" json:"sections"`
}

// CatalogSection groups related capabilities.
type CatalogSection struct {
	Title string        `yaml:"title" json:"title"`
	Icon  string        `yaml:"icon" json:"icon,omitempty"`
	Items []CatalogItem `yaml:"items" json:"items"`
}

// CatalogItem is one capability with its bullet points. A non-empty
// Unavailable says why the agent cannot perform it on this network.
type CatalogItem struct {
	Name        string   `yaml:"name" json:"name"`
	Unavailable string   `yaml:"unavailable" json:"unavailable,omitempty"`
	Details     []string `yaml:"details" json:"details"`
}

// Available reports whether the agent has a tool for the item.
func (i CatalogItem) Available() bool {
	return i.Unavailable == ""
}

// ParseCatalog decodes a YAML capability catalog.
func ParseCatalog(data []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Catalog{}, fmt.Errorf("parse capability catalog: %w", err)
	}
	for i, section := range c.Sections {
		if section.Title == "" {
			return Catalog{}, fmt.Errorf("capability section %d has no title", i)
		}
	}
	return c, nil
}

// DefaultCatalog returns the embedded catalog.
func DefaultCatalog() Catalog {
	c, err := ParseCatalog(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}
