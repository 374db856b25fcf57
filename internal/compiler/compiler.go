// compiler.go
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

// Package compiler assembles the fragments of a class into one artifact in the
// build directory.
package compiler

import (
	"context"
	"fmt"

	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/metrics"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"go.uber.org/zap"
)

// Evictor drops a class from a cache of loaded artifacts
type Evictor interface {
	Evict(className string)
}

// Compiler compiles classes from a fragment store into a build directory
type Compiler struct {
	fragments *fragments.Store
	relations *relations.Reader
	buildDir  string
	evictor   Evictor
	logger    *zap.SugaredLogger
}

// New creates a Compiler. Every successful compile evicts the class from evictor.
func New(store *fragments.Store, reader *relations.Reader, buildDir string, evictor Evictor, logger *zap.SugaredLogger) *Compiler {
	return &Compiler{
		fragments: store,
		relations: reader,
		buildDir:  buildDir,
		evictor:   evictor,
		logger:    logger,
	}
}

// BuildDir is the directory artifacts are written to
func (c *Compiler) BuildDir() string {
	return c.buildDir
}

// Compile reads the fragments of className, writes its artifact and evicts any
// cached copy. A class directory that cannot be listed fails with
// types.ErrFragmentDirectoryNotFound before anything is written. Fragment bodies
// are not validated here; a broken body fails on its first invocation.
func (c *Compiler) Compile(ctx context.Context, className string) (artifact *Artifact, err error) {
	defer func() {
		metrics.Compiles.WithLabelValues(metrics.Result(err)).Inc()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frags, err := c.fragments.Fragments(className)
	if err != nil {
		return nil, err
	}

	rel, err := c.relations.Read(className)
	if err != nil {
		c.logger.Warnw("Relation descriptor ignored, using empty relations",
			"class", className, "path", c.relations.Path(className), "error", err)
	}

	artifact = &Artifact{
		Class:   className,
		Extends: BaseClass,
		Methods: make([]Method, 0, len(frags)),
		Mapper:  models.NewMapperConfig(className, rel),
	}
	for _, f := range frags {
		artifact.Methods = append(artifact.Methods, Method{Name: f.Name, File: f.File, Source: f.Source})
	}

	raw, err := artifact.Encode()
	if err != nil {
		return nil, err
	}

	path := ArtifactPath(c.buildDir, className)
	if err := writeFileAtomic(path, raw); err != nil {
		return nil, fmt.Errorf("failed to write artifact %s: %w", path, err)
	}

	c.evictor.Evict(className)

	c.logger.Debugw("Compiled class", "class", className, "methods", len(artifact.Methods), "path", path)

	return artifact, nil
}
