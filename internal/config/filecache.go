package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ConfigExtensions are the file extensions treated as configuration files.
// Files with these extensions are never method fragments.
var ConfigExtensions = []string{".json", ".yaml", ".yml"}

// IsConfigFile reports whether path carries a configuration file extension
func IsConfigFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range ConfigExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// FileCache memoizes the raw contents of configuration files by path.
// Entries stay until evicted, so a changed file is only seen after Evict.
type FileCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

// NewFileCache creates an empty FileCache
func NewFileCache() *FileCache {
	return &FileCache{entries: make(map[string][]byte)}
}

// Decode decodes the (possibly cached) file at path into out.
// JSON and YAML are both accepted. A missing file returns an error
// matching fs.ErrNotExist and is not cached.
func (c *FileCache) Decode(path string, out interface{}) error {
	raw, err := c.read(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// Evict drops the cached copy of path. It reports whether an entry was removed.
func (c *FileCache) Evict(path string) bool {
	key := filepath.Clean(path)

	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.entries[key]
	delete(c.entries, key)
	return ok
}

// Cached reports whether path currently has a cached copy
func (c *FileCache) Cached(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[filepath.Clean(path)]
	return ok
}

func (c *FileCache) read(path string) ([]byte, error) {
	key := filepath.Clean(path)

	c.mu.Lock()
	raw, ok := c.entries[key]
	c.mu.Unlock()
	if ok {
		return raw, nil
	}

	raw, err := os.ReadFile(key)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = raw
	c.mu.Unlock()

	return raw, nil
}

// ResolveDatabase returns db with a relative SQLite database path anchored at base
func ResolveDatabase(db DBConfig, base string) DBConfig {
	switch db.Type {
	case "sqlite", "sqlite-pure":
		if db.Database != "" && db.Database != ":memory:" && !filepath.IsAbs(db.Database) && !strings.HasPrefix(db.Database, "file:") {
			db.Database = filepath.Join(base, db.Database)
		}
	}
	return db
}
