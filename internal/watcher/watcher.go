// watcher.go
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

// Package watcher turns source tree changes into compile and rebuild actions
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/localnerve/moka/internal/metrics"
	"go.uber.org/zap"
)

// State is what the watcher is doing
type State int32

const (
	Idle State = iota
	Dispatching
)

func (s State) String() string {
	if s == Dispatching {
		return "dispatching"
	}
	return "idle"
}

// Handler carries out classified actions
type Handler interface {
	HandleAction(ctx context.Context, action Action) error
}

// Watcher watches a source tree recursively. Actions run one at a time, in
// delivery order, on the goroutine calling Run.
type Watcher struct {
	root         string
	dbConfigName string
	handler      Handler
	logger       *zap.SugaredLogger

	fs    *fsnotify.Watcher
	state atomic.Int32
}

// New watches root and every directory below it
func New(root, dbConfigName string, handler Handler, logger *zap.SugaredLogger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		root:         root,
		dbConfigName: dbConfigName,
		handler:      handler,
		logger:       logger,
		fs:           fw,
	}
	if _, err := w.addRecursive(root); err != nil {
		fw.Close()
		return nil, err
	}
	return w, nil
}

// State reports whether an action is running
func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Run dispatches events until ctx is done or the watcher is closed
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Infow("Watching source tree", "root", w.root)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warnw("Watcher error", "error", err)
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fs.Close()
}

func (w *Watcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			// files that arrived with the directory produce no events of their own
			file, err := w.addRecursive(ev.Name)
			if err != nil {
				w.logger.Warnw("Failed to watch new directory", "path", ev.Name, "error", err)
			}
			if file != "" {
				w.dispatch(ctx, Classify(w.root, w.dbConfigName, file))
			}
			return
		}
	}

	w.dispatch(ctx, Classify(w.root, w.dbConfigName, ev.Name))
}

func (w *Watcher) dispatch(ctx context.Context, action Action) {
	metrics.WatcherEvents.WithLabelValues(action.Kind.String()).Inc()
	if action.Kind == None {
		return
	}

	w.state.Store(int32(Dispatching))
	defer w.state.Store(int32(Idle))

	w.logger.Debugw("Source change", "action", action.Kind.String(), "path", action.Path, "class", action.Class)

	if err := w.handler.HandleAction(ctx, action); err != nil {
		w.logger.Errorw("Source change action failed", "action", action.Kind.String(), "path", action.Path, "class", action.Class, "error", err)
	}
}

// addRecursive watches dir and its non-hidden subdirectories. It returns the first
// regular file found, if any.
func (w *Watcher) addRecursive(dir string) (string, error) {
	var first string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return w.fs.Add(path)
		}
		if first == "" && d.Type().IsRegular() && !strings.HasPrefix(d.Name(), ".") {
			first = path
		}
		return nil
	})
	if err != nil {
		return first, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return first, nil
}
