package puzzles

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultWrongMessage = "Wrong!"

func LoadCatalog(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := ParseCatalog(b)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	cat.Path = path
	return cat, nil
}

func ParseCatalog(b []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(b, &cat); err != nil {
		return nil, err
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	applyCatalogDefaults(&cat)
	return &cat, nil
}

// NewCatalog builds a validated catalog from puzzles assembled in code.
func NewCatalog(items ...Puzzle) (*Catalog, error) {
	cat := Catalog{Kind: CatalogKind, SchemaVersion: SupportedSchemaVersion, Puzzles: items}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	applyCatalogDefaults(&cat)
	return &cat, nil
}

func applyCatalogDefaults(cat *Catalog) {
	sort.Slice(cat.Puzzles, func(i, j int) bool { return cat.Puzzles[i].Stage < cat.Puzzles[j].Stage })
	for i := range cat.Puzzles {
		p := &cat.Puzzles[i]
		p.Answer = strings.TrimSpace(p.Answer)
		if p.CorrectMessage == "" {
			p.CorrectMessage = "Correct!"
		}
		if len(p.WrongMessages) == 0 {
			p.WrongMessages = []string{defaultWrongMessage}
		}
	}
	cat.index()
}
