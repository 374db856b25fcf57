// store.go
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

// Package fragments is a read-only view over the application source tree.
// Every sub-directory of the source root is a class, every regular file in a
// class directory is the body of one method of that class.
package fragments

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/types"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Fragment is the source of one method
type Fragment struct {
	Name   string
	File   string
	Source string
}

// Store reads classes and fragments below Root
type Store struct {
	Root    string
	exclude map[string]struct{}
	enc     encoding.Encoding
}

// NewStore creates a Store for root. Files are decoded from encodingName
// (a WHATWG label such as "utf8" or "latin1"). Files named in exclude are never
// treated as fragments.
func NewStore(root, encodingName string, exclude ...string) (*Store, error) {
	enc, err := htmlindex.Get(encodingName)
	if err != nil {
		return nil, fmt.Errorf("unsupported file encoding %q: %w", encodingName, err)
	}

	skip := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		skip[name] = struct{}{}
	}

	return &Store{Root: root, exclude: skip, enc: enc}, nil
}

// ClassDir is the directory holding the fragments of className
func (s *Store) ClassDir(className string) string {
	return filepath.Join(s.Root, className)
}

// Classes lists the class names, sorted
func (s *Store) Classes() ([]string, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to list source root: %w", err)
	}

	classes := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || hidden(entry.Name()) {
			continue
		}
		classes = append(classes, entry.Name())
	}
	sort.Strings(classes)

	return classes, nil
}

// Fragments reads every fragment of className in directory listing order
func (s *Store) Fragments(className string) ([]Fragment, error) {
	if !ValidClassName(className) {
		return nil, types.NewError(types.ErrFragmentDirectoryNotFound, className, fmt.Errorf("invalid class name"))
	}

	dir := s.ClassDir(className)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.NewError(types.ErrFragmentDirectoryNotFound, className, err)
	}

	seen := make(map[string]string, len(entries))
	fragments := make([]Fragment, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !s.IsFragment(name) {
			continue
		}

		method := MethodName(name)
		if prev, dup := seen[method]; dup {
			return nil, types.NewMethodError(types.ErrDuplicateMethod, className, method,
				fmt.Errorf("%s and %s", prev, name))
		}
		seen[method] = name

		source, err := s.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read fragment %s/%s: %w", className, name, err)
		}

		fragments = append(fragments, Fragment{Name: method, File: name, Source: source})
	}

	return fragments, nil
}

// IsFragment reports whether a file named name inside a class directory is a method fragment
func (s *Store) IsFragment(name string) bool {
	if hidden(name) || config.IsConfigFile(name) {
		return false
	}
	_, skip := s.exclude[name]
	return !skip
}

// ReadFile reads path and decodes it from the store's file encoding
func (s *Store) ReadFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	decoded, err := s.enc.NewDecoder().Bytes(raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return string(decoded), nil
}

// ValidClassName reports whether name can name a class directory directly below the root
func ValidClassName(name string) bool {
	return name != "" && !hidden(name) && !strings.ContainsAny(name, `/\`)
}

// MethodName derives a method name from a fragment file name
func MethodName(file string) string {
	return strings.TrimSuffix(file, filepath.Ext(file))
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}
