package cases

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Catalog is a JSON-file backed set of cases. It seeds the in-memory store
// and feeds the import and simulation tools.
type Catalog struct {
	mu      sync.RWMutex
	cases   map[string]*Case
	dataDir string
}

func NewCatalog(dataDir string) *Catalog {
	if dataDir == "" {
		dataDir = "data"
	}
	c := &Catalog{
		cases:   make(map[string]*Case),
		dataDir: dataDir,
	}
	c.load()
	return c
}

func (c *Catalog) path() string {
	return filepath.Join(c.dataDir, "cases.json")
}

// LoadFile parses a cases file: a JSON array of cases.
func LoadFile(path string) ([]*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var list []*Case
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return list, nil
}

func (c *Catalog) load() {
	list, err := LoadFile(c.path())
	if err != nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cs := range list {
		if cs != nil && cs.ID != "" {
			c.cases[cs.ID] = cs
		}
	}
}

// saveLocked writes the catalog to disk. Caller must hold c.mu.
func (c *Catalog) saveLocked() error {
	data, err := json.MarshalIndent(c.listLocked(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(c.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path(), data, 0644)
}

func (c *Catalog) listLocked() []*Case {
	list := make([]*Case, 0, len(c.cases))
	for _, cs := range c.cases {
		list = append(list, cs)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list
}

// Register stores a case by id, overwriting any previous version.
func (c *Catalog) Register(cs *Case) error {
	if cs == nil || cs.ID == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cases[cs.ID] = cs.Clone()
	return c.saveLocked()
}

// List returns all cases ordered by id.
func (c *Catalog) List() []*Case {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.listLocked()
	for i := range list {
		list[i] = list[i].Clone()
	}
	return list
}

func (c *Catalog) GetCase(_ context.Context, id string) (*Case, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cs, ok := c.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return cs.Clone(), nil
}
