// Package messages serves the versioned catalog of user-facing message texts
// that desktop clients display for server, trial, login and recovery states.
package messages

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v2"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

// Message is one catalog entry. Action is nil when the client offers no
// follow-up.
type Message struct {
	Title   string  `yaml:"title" json:"title"`
	Message string  `yaml:"message" json:"message"`
	Action  *string `yaml:"action" json:"action"`
}

// Catalog is an immutable set of messages grouped by category.
type Catalog struct {
	version    string
	categories map[string]map[string]Message
}

type catalogDocument struct {
	Version    string                        `yaml:"version"`
	Categories map[string]map[string]Message `yaml:"categories"`
}

// Default parses the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(embeddedCatalog)
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc catalogDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse message catalog: %w", err)
	}
	if doc.Version == "" {
		return nil, fmt.Errorf("message catalog has no version")
	}
	for category, entries := range doc.Categories {
		for key, msg := range entries {
			if msg.Title == "" || msg.Message == "" {
				return nil, fmt.Errorf("message %s/%s needs a title and a message", category, key)
			}
		}
	}
	return &Catalog{version: doc.Version, categories: doc.Categories}, nil
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Categories returns the category names, sorted.
func (c *Catalog) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Category returns a copy of one category's messages.
func (c *Catalog) Category(name string) (map[string]Message, bool) {
	entries, ok := c.categories[name]
	if !ok {
		return nil, false
	}
	out := make(map[string]Message, len(entries))
	for k, v := range entries {
		out[k] = v
	}
	return out, true
}

// Lookup returns a single message.
func (c *Catalog) Lookup(category, key string) (Message, bool) {
	msg, ok := c.categories[category][key]
	return msg, ok
}

// All returns a copy of every category.
func (c *Catalog) All() map[string]map[string]Message {
	out := make(map[string]map[string]Message, len(c.categories))
	for name := range c.categories {
		out[name], _ = c.Category(name)
	}
	return out
}
