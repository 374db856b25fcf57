package datastore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
)

// AdapterOptions control how an adapter is registered
type AdapterOptions struct {
	// Default makes the adapter the one every mapper reads through
	Default bool
}

// DataStore holds the mappers of every class and the adapters they read through.
// A loaded class is bound to exactly one DataStore.
type DataStore struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	defaultName string
	mappers     map[string]models.MapperConfig
}

// New creates an empty data store
func New() *DataStore {
	return &DataStore{
		adapters: make(map[string]Adapter),
		mappers:  make(map[string]models.MapperConfig),
	}
}

// RegisterAdapter adds adapter under name. The first adapter registered becomes
// the default unless a later one asks for it.
func (s *DataStore) RegisterAdapter(name string, adapter Adapter, opts AdapterOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.adapters[name] = adapter
	if opts.Default || s.defaultName == "" {
		s.defaultName = name
	}
}

// Adapter returns the default adapter
func (s *DataStore) Adapter() (Adapter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.adapters[s.defaultName]
	return a, ok
}

// DefineMapper registers (or replaces) the mapper of className
func (s *DataStore) DefineMapper(className string, cfg models.MapperConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappers[className] = cfg
}

// Mapper returns the mapper of className
func (s *DataStore) Mapper(className string) (models.MapperConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappers[className]
	return m, ok
}

// Mappers returns a copy of every registered mapper
func (s *DataStore) Mappers() map[string]models.MapperConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]models.MapperConfig, len(s.mappers))
	for k, v := range s.mappers {
		out[k] = v
	}
	return out
}

// MapperNames lists the classes with a mapper, sorted
func (s *DataStore) MapperNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.mappers))
	for k := range s.mappers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Find loads the record of className with the given id
func (s *DataStore) Find(ctx context.Context, className string, id interface{}) (models.Record, error) {
	mapper, adapter, err := s.resolve(className)
	if err != nil {
		return nil, err
	}

	rec, err := adapter.Find(ctx, mapper, id)
	if errors.Is(err, types.ErrRecordNotFound) {
		return nil, types.NewError(types.ErrRecordNotFound, className, fmt.Errorf("%s = %v", mapper.IDAttribute, id))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", className, err)
	}
	return rec, nil
}

// FindAll loads the records of className matching where
func (s *DataStore) FindAll(ctx context.Context, className string, where map[string]interface{}) ([]models.Record, error) {
	mapper, adapter, err := s.resolve(className)
	if err != nil {
		return nil, err
	}

	recs, err := adapter.FindAll(ctx, mapper, where)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", className, err)
	}
	return recs, nil
}

// FindRelated follows the relation exposed as field on the record of className with
// the given id. A has-many relation yields []models.Record, a belongs-to relation a
// single models.Record, or nil when the foreign key is empty.
func (s *DataStore) FindRelated(ctx context.Context, className string, id interface{}, field string) (interface{}, error) {
	mapper, ok := s.Mapper(className)
	if !ok {
		return nil, types.NewError(types.ErrMapperNotFound, className, nil)
	}

	target, rel, hasMany, ok := mapper.Relations.Lookup(field)
	if !ok {
		return nil, types.NewError(types.ErrMapperNotFound, className, fmt.Errorf("no relation exposed as %s", field))
	}

	if hasMany {
		return s.FindAll(ctx, target, map[string]interface{}{rel.ForeignKey: id})
	}

	owner, err := s.Find(ctx, className, id)
	if err != nil {
		return nil, err
	}
	fk, ok := owner[rel.ForeignKey]
	if !ok || fk == nil {
		return nil, nil
	}
	return s.Find(ctx, target, fk)
}

// Ping checks the default adapter
func (s *DataStore) Ping(ctx context.Context) error {
	adapter, ok := s.Adapter()
	if !ok {
		return fmt.Errorf("no default adapter registered")
	}
	return adapter.Ping(ctx)
}

// Close closes every adapter, returning the first failure
func (s *DataStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var first error
	for name, a := range s.adapters {
		if err := a.Close(); err != nil && first == nil {
			first = fmt.Errorf("failed to close adapter %s: %w", name, err)
		}
	}
	s.adapters = make(map[string]Adapter)
	s.defaultName = ""
	return first
}

func (s *DataStore) resolve(className string) (models.MapperConfig, Adapter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mapper, ok := s.mappers[className]
	if !ok {
		return models.MapperConfig{}, nil, types.NewError(types.ErrMapperNotFound, className, nil)
	}
	adapter, ok := s.adapters[s.defaultName]
	if !ok {
		return models.MapperConfig{}, nil, types.NewError(types.ErrAdapterConnection, className, fmt.Errorf("no default adapter registered"))
	}
	return mapper, adapter, nil
}
