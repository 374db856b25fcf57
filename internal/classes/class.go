// class.go
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

// Package classes turns compiled artifacts into executable classes and caches them
// per worker.
package classes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
	"go.uber.org/zap"
)

// Handler is the uniform signature every method is wrapped into. A Handler returns
// an error instead of panicking and has completed all its work when it returns.
type Handler func(ctx context.Context, req *Request, res *Response) error

// Store is the data store capability a loaded class is bound to
type Store interface {
	Find(ctx context.Context, className string, id interface{}) (models.Record, error)
	FindAll(ctx context.Context, className string, where map[string]interface{}) ([]models.Record, error)
	FindRelated(ctx context.Context, className string, id interface{}, field string) (interface{}, error)
	DefineMapper(className string, cfg models.MapperConfig)
}

// StoreFunc returns the data store classes bind to when they are loaded
type StoreFunc func() Store

// Class is an executable class: a method table bound to a data store
type Class struct {
	Name     string
	Extends  string
	Mapper   models.MapperConfig
	LoadedAt time.Time

	store   Store
	methods map[string]Handler
	order   []string
	logger  *zap.SugaredLogger
}

// NewClass builds the method table of artifact, binding it to store
func NewClass(artifact *compiler.Artifact, store Store, logger *zap.SugaredLogger) *Class {
	c := &Class{
		Name:     artifact.Class,
		Extends:  artifact.Extends,
		Mapper:   artifact.Mapper,
		LoadedAt: time.Now(),
		store:    store,
		methods:  make(map[string]Handler, len(artifact.Methods)),
		order:    make([]string, 0, len(artifact.Methods)),
		logger:   logger.With("class", artifact.Class),
	}
	for _, m := range artifact.Methods {
		c.Register(m.Name, c.scriptHandler(newScriptMethod(artifact.Class, m)))
	}
	return c
}

// Register adds (or replaces) a method, wrapping it so it cannot panic
func (c *Class) Register(name string, h Handler) {
	if _, exists := c.methods[name]; !exists {
		c.order = append(c.order, name)
	}
	c.methods[name] = Wrap(c.Name, name, h)
}

// Methods lists the method names in declaration order
func (c *Class) Methods() []string {
	return append([]string(nil), c.order...)
}

// HasMethod reports whether the class declares name
func (c *Class) HasMethod(name string) bool {
	_, ok := c.methods[name]
	return ok
}

// Store returns the data store the class is bound to
func (c *Class) Store() Store {
	return c.store
}

// Invoke runs method. A missing method fails with types.ErrMethodNotFound, a
// failing one with types.ErrMethodExecution.
func (c *Class) Invoke(ctx context.Context, method string, req *Request, res *Response) error {
	h, ok := c.methods[method]
	if !ok {
		return types.NewMethodError(types.ErrMethodNotFound, c.Name, method, nil)
	}
	return h(ctx, req, res)
}

// Wrap converts panics and plain errors of h into types.ErrMethodExecution errors
func Wrap(className, method string, h Handler) Handler {
	return func(ctx context.Context, req *Request, res *Response) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = types.NewMethodError(types.ErrMethodExecution, className, method, fmt.Errorf("panic: %v", r))
			}
		}()

		if err := h(ctx, req, res); err != nil {
			if errors.Is(err, types.ErrMethodExecution) {
				return err
			}
			return types.NewMethodError(types.ErrMethodExecution, className, method, err)
		}
		return nil
	}
}
