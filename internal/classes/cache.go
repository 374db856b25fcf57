package classes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	class    *Class
	loadedAt time.Time
}

// Cache maps class names to loaded classes. Loads read the artifact from the build
// directory and bind the class to the current data store.
//
// Every Evict bumps the class's generation and every EvictAll the cache epoch. A
// load only memoizes its result when neither changed while it ran, so a load that
// raced with an eviction can never reinstate stale code.
type Cache struct {
	buildDir string
	stores   StoreFunc
	logger   *zap.SugaredLogger

	mu      sync.Mutex
	entries map[string]*cacheEntry
	gens    map[string]uint64
	epoch   uint64
	group   singleflight.Group
}

// NewCache creates an empty cache over buildDir. stores may be nil, leaving
// loaded classes unbound.
func NewCache(buildDir string, stores StoreFunc, logger *zap.SugaredLogger) *Cache {
	return &Cache{
		buildDir: buildDir,
		stores:   stores,
		logger:   logger,
		entries:  make(map[string]*cacheEntry),
		gens:     make(map[string]uint64),
	}
}

// Load returns the cached class, or loads it fresh from the build directory
func (c *Cache) Load(ctx context.Context, className string) (*Class, error) {
	c.mu.Lock()
	if e, ok := c.entries[className]; ok {
		c.mu.Unlock()
		return e.class, nil
	}
	gen, epoch := c.gens[className], c.epoch
	c.mu.Unlock()

	key := fmt.Sprintf("%s#%d#%d", className, gen, epoch)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		cls, err := c.load(className)
		metrics.ArtifactLoads.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.gens[className] == gen && c.epoch == epoch {
			c.entries[className] = &cacheEntry{class: cls, loadedAt: cls.LoadedAt}
		}
		c.mu.Unlock()

		return cls, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Class), nil
}

// Evict drops className so the next Load reads the build directory again
func (c *Cache) Evict(className string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, className)
	c.gens[className]++
	metrics.Evictions.Inc()
}

// EvictAll drops every class
func (c *Cache) EvictAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*cacheEntry)
	c.epoch++
	metrics.Evictions.Inc()
}

// Loaded reports whether className is cached, and since when
func (c *Cache) Loaded(className string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[className]
	if !ok {
		return time.Time{}, false
	}
	return e.loadedAt, true
}

// Len is the number of cached classes
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) load(className string) (*Class, error) {
	artifact, err := compiler.ReadArtifact(c.buildDir, className)
	if err != nil {
		return nil, err
	}

	var store Store
	if c.stores != nil {
		store = c.stores()
	}

	cls := NewClass(artifact, store, c.logger)

	// the artifact registers its own mapper with the store it binds to
	if store != nil {
		store.DefineMapper(artifact.Class, artifact.Mapper)
	}

	c.logger.Debugw("Loaded class", "class", className, "methods", len(artifact.Methods))

	return cls, nil
}
