// worker.go
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

// Package worker builds the per-process context object: every component a worker
// owns, wired together once and handed to the dispatcher and the watcher.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/localnerve/moka/internal/classes"
	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/datastore"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/handlers"
	"github.com/localnerve/moka/internal/logging"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"github.com/localnerve/moka/internal/watcher"
	"go.uber.org/zap"
)

// Worker is the context object of one worker process
type Worker struct {
	Config     *config.Config
	Files      *config.FileCache
	Fragments  *fragments.Store
	Relations  *relations.Reader
	Compiler   *compiler.Compiler
	Cache      *classes.Cache
	Registry   *datastore.Registry
	Dispatcher *handlers.Dispatcher

	logger *zap.SugaredLogger
}

// Option customizes a Worker
type Option func(*options)

type options struct {
	opener datastore.Opener
}

// WithOpener replaces how data store adapters are opened
func WithOpener(open datastore.Opener) Option {
	return func(o *options) {
		o.opener = open
	}
}

// New wires the components of a worker. Nothing is compiled or connected until Prepare.
func New(cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*Worker, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.opener == nil {
		o.opener = datastore.SQLOpener(logging.Gorm(logger, cfg.LogLevel))
	}

	store, err := fragments.NewStore(cfg.AppDirectory, cfg.DefaultFileEncoding, cfg.MappingConfig, cfg.AppDBConfig)
	if err != nil {
		return nil, err
	}
	reader := relations.NewReader(store, cfg.MappingConfig)
	files := config.NewFileCache()

	registry := datastore.NewRegistry(cfg, files, store, reader, o.opener, logger)

	// loaded classes bind to whatever store is current at load time
	cache := classes.NewCache(cfg.BuildDirectory, func() classes.Store {
		if s := registry.Current(); s != nil {
			return s
		}
		return nil
	}, logger)
	registry.SetFlusher(cache)

	return &Worker{
		Config:     cfg,
		Files:      files,
		Fragments:  store,
		Relations:  reader,
		Compiler:   compiler.New(store, reader, cfg.BuildDirectory, cache, logger),
		Cache:      cache,
		Registry:   registry,
		Dispatcher: handlers.NewDispatcher(cache, cfg.EntryClass, cfg.DefaultMethodName, logger),
		logger:     logger,
	}, nil
}

// Prepare creates the source and build directories, compiles every class and
// builds the data store. A data store that cannot connect is logged, not fatal:
// the worker serves and the next database-config change retries.
func (w *Worker) Prepare(ctx context.Context) error {
	for _, dir := range []string{w.Config.AppDirectory, w.Config.BuildDirectory} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	if err := w.CompileApp(ctx); err != nil {
		w.logger.Errorw("Some classes failed to compile", "error", err)
	}

	if err := w.Registry.Rebuild(ctx); err != nil {
		w.logger.Errorw("Data store unavailable", "error", err)
	}

	return ctx.Err()
}

// CompileApp compiles every class in the source tree. Failures do not stop the
// remaining classes; they are returned joined.
func (w *Worker) CompileApp(ctx context.Context) error {
	classNames, err := w.Fragments.Classes()
	if err != nil {
		return err
	}

	var errs []error
	for _, className := range classNames {
		if _, err := w.Compiler.Compile(ctx, className); err != nil {
			errs = append(errs, err)
		}
	}

	w.logger.Infow("Compiled app", "classes", len(classNames), "failed", len(errs))

	return errors.Join(errs...)
}

// CompileClass recompiles one class and rebuilds the data store. A class whose
// directory is gone has its artifact removed, and the rebuild drops its mapper.
func (w *Worker) CompileClass(ctx context.Context, className string) error {
	_, err := w.Compiler.Compile(ctx, className)
	switch {
	case errors.Is(err, types.ErrFragmentDirectoryNotFound):
		w.removeArtifact(className)
	case err != nil:
		return err
	}

	return w.Registry.Rebuild(ctx)
}

// HandleAction carries out a classified source change
func (w *Worker) HandleAction(ctx context.Context, action watcher.Action) error {
	switch action.Kind {
	case watcher.RebuildRegistry:
		w.Files.Evict(action.Path)
		return w.Registry.Rebuild(ctx)
	case watcher.EvictConfig:
		w.Files.Evict(action.Path)
		return nil
	case watcher.CompileClass:
		return w.CompileClass(ctx, action.Class)
	}
	return nil
}

// Watch runs the change watcher over the source tree until ctx is done
func (w *Worker) Watch(ctx context.Context) error {
	wt, err := watcher.New(w.Config.AppDirectory, w.Config.AppDBConfig, w, w.logger)
	if err != nil {
		return err
	}
	defer wt.Close()

	return wt.Run(ctx)
}

// Close releases the data store connection
func (w *Worker) Close() error {
	return w.Registry.Close()
}

func (w *Worker) removeArtifact(className string) {
	path := compiler.ArtifactPath(w.Config.BuildDirectory, className)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		w.logger.Warnw("Failed to remove artifact", "class", className, "path", path, "error", err)
	}
	w.Cache.Evict(className)
}
