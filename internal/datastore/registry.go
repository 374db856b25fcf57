// registry.go
//
// A compile-on-change web application runtime
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of moka.
// moka is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// moka is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with moka.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package datastore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/metrics"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"
)

// DefaultAdapterName is the name the registry registers its connection under
const DefaultAdapterName = "sql"

// Opener opens an adapter for a database configuration
type Opener func(db config.DBConfig) (Adapter, error)

// SQLOpener opens GORM-backed adapters logging through log
func SQLOpener(log gormlogger.Interface) Opener {
	return func(db config.DBConfig) (Adapter, error) {
		return OpenSQLAdapter(db, log)
	}
}

// Flusher drops every loaded class
type Flusher interface {
	EvictAll()
}

// Registry owns the current data store of a worker and rebuilds it wholesale
type Registry struct {
	cfg       *config.Config
	files     *config.FileCache
	fragments *fragments.Store
	relations *relations.Reader
	open      Opener
	logger    *zap.SugaredLogger

	mu       sync.RWMutex
	flusher  Flusher
	current  *DataStore
	dbConfig config.DBConfig
	rebuilds int
}

// NewRegistry creates a registry with no data store yet; call Rebuild to build one
func NewRegistry(cfg *config.Config, files *config.FileCache, store *fragments.Store, reader *relations.Reader, open Opener, logger *zap.SugaredLogger) *Registry {
	return &Registry{
		cfg:       cfg,
		files:     files,
		fragments: store,
		relations: reader,
		open:      open,
		logger:    logger,
	}
}

// SetFlusher sets the cache that is flushed after every successful rebuild
func (r *Registry) SetFlusher(f Flusher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flusher = f
}

// DBConfig resolves the database configuration: the database-config file in the
// source root merged over the configured database, or the configured database alone
// when there is no such file.
func (r *Registry) DBConfig() (config.DBConfig, error) {
	db := r.cfg.Database
	err := r.files.Decode(r.cfg.DBConfigPath(), &db)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return config.ResolveDatabase(r.cfg.Database, r.cfg.BaseDirectory), nil
	case err != nil:
		return config.DBConfig{}, err
	}
	return config.ResolveDatabase(db, r.cfg.AppDirectory), nil
}

// Rebuild replaces the current data store with a new one: a fresh adapter connection
// and one mapper per class in the source tree. When the connection cannot be opened
// the current data store stays in service and types.ErrAdapterConnection is returned.
func (r *Registry) Rebuild(ctx context.Context) (err error) {
	defer func() {
		metrics.Rebuilds.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	db, err := r.DBConfig()
	if err != nil {
		return fmt.Errorf("%w: %w", types.ErrAdapterConnection, err)
	}

	adapter, err := r.open(db)
	if err != nil {
		r.logger.Errorw("Data store connection failed, keeping the current store", "type", db.Type, "database", db.Database, "error", err)
		return fmt.Errorf("%w: %w", types.ErrAdapterConnection, err)
	}

	classNames, err := r.fragments.Classes()
	if err != nil {
		adapter.Close()
		return err
	}

	store := New()
	store.RegisterAdapter(DefaultAdapterName, adapter, AdapterOptions{Default: true})
	for _, className := range classNames {
		rel, err := r.relations.Read(className)
		if err != nil {
			r.logger.Warnw("Relation descriptor ignored, using empty relations",
				"class", className, "path", r.relations.Path(className), "error", err)
		}
		store.DefineMapper(className, models.NewMapperConfig(className, rel))
	}

	r.mu.Lock()
	old := r.current
	r.current = store
	r.dbConfig = db
	r.rebuilds++
	flusher := r.flusher
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			r.logger.Warnw("Failed to close the previous data store", "error", err)
		}
	}

	if flusher != nil {
		flusher.EvictAll()
	}

	r.logger.Infow("Data store rebuilt", "type", db.Type, "database", db.Database, "mappers", len(classNames))

	return nil
}

// Current returns the data store in service, nil before the first successful Rebuild
func (r *Registry) Current() *DataStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Rebuilds counts the successful rebuilds
func (r *Registry) Rebuilds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rebuilds
}

// Database is the configuration the current data store was opened with
func (r *Registry) Database() config.DBConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dbConfig
}

// Find loads a record through the current data store
func (r *Registry) Find(ctx context.Context, className string, id interface{}) (models.Record, error) {
	store, err := r.store()
	if err != nil {
		return nil, err
	}
	return store.Find(ctx, className, id)
}

// FindRelated follows a relation through the current data store
func (r *Registry) FindRelated(ctx context.Context, className string, id interface{}, field string) (interface{}, error) {
	store, err := r.store()
	if err != nil {
		return nil, err
	}
	return store.FindRelated(ctx, className, id, field)
}

// Mappers returns the mapper set of the current data store
func (r *Registry) Mappers() map[string]models.MapperConfig {
	store := r.Current()
	if store == nil {
		return map[string]models.MapperConfig{}
	}
	return store.Mappers()
}

// Ping checks the connection of the current data store
func (r *Registry) Ping(ctx context.Context) error {
	store, err := r.store()
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// Close closes the current data store
func (r *Registry) Close() error {
	r.mu.Lock()
	store := r.current
	r.current = nil
	r.mu.Unlock()

	if store == nil {
		return nil
	}
	return store.Close()
}

func (r *Registry) store() (*DataStore, error) {
	store := r.Current()
	if store == nil {
		return nil, fmt.Errorf("%w: no data store built yet", types.ErrAdapterConnection)
	}
	return store, nil
}
