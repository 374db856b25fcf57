package watcher

import (
	"path/filepath"
	"strings"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/fragments"
)

// Kind is what a source tree change asks the worker to do
type Kind int

const (
	// None ignores the change
	None Kind = iota
	// RebuildRegistry re-reads the database-config file and rebuilds the data store
	RebuildRegistry
	// EvictConfig drops one configuration file from the config cache
	EvictConfig
	// CompileClass recompiles one class and rebuilds the data store
	CompileClass
)

func (k Kind) String() string {
	switch k {
	case RebuildRegistry:
		return "rebuild"
	case EvictConfig:
		return "evict_config"
	case CompileClass:
		return "compile"
	default:
		return "none"
	}
}

// Action is a classified change
type Action struct {
	Kind  Kind
	Path  string
	Class string
}

// Classify maps a changed path below root to an action. The first matching rule wins:
//  1. a top-level file named dbConfigName rebuilds the registry
//  2. any other file with a config extension is evicted from the config cache
//  3. a path inside a class directory compiles that class
//  4. anything else is ignored
func Classify(root, dbConfigName, path string) Action {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return Action{Kind: None, Path: path}
	}
	rel = filepath.ToSlash(rel)
	if rel == "." || rel == ".." || strings.HasPrefix(rel, "../") {
		return Action{Kind: None, Path: path}
	}

	class, rest, nested := strings.Cut(rel, "/")

	switch {
	case !nested && rel == dbConfigName:
		return Action{Kind: RebuildRegistry, Path: path}
	case config.IsConfigFile(rel):
		return Action{Kind: EvictConfig, Path: path}
	case nested && rest != "" && fragments.ValidClassName(class):
		return Action{Kind: CompileClass, Path: path, Class: class}
	}
	return Action{Kind: None, Path: path}
}
