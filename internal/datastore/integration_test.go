//go:build integration

package datastore_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/datastore"
	"github.com/localnerve/moka/internal/devdb"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const mariadbSchema = `
CREATE TABLE team (id INT PRIMARY KEY, name VARCHAR(64));
CREATE TABLE user (id INT PRIMARY KEY, name VARCHAR(64), team_id INT NULL);
CREATE TABLE post (id INT PRIMARY KEY, title VARCHAR(64), user_id INT);
INSERT INTO team (id, name) VALUES (1, 'core');
INSERT INTO user (id, name, team_id) VALUES (1, 'ada', 1);
INSERT INTO post (id, title, user_id) VALUES (1, 'first', 1), (2, 'second', 1);
`

func TestRegistryAgainstMariaDB(t *testing.T) {
	db, err := devdb.Start(t, devdb.OptionsFromEnv())
	require.NoError(t, err)
	t.Cleanup(db.Terminate)
	require.NoError(t, db.Exec(mariadbSchema))

	base := t.TempDir()
	root := filepath.Join(base, "app")
	for _, class := range []string{"User", "Post", "Team"} {
		write(t, filepath.Join(root, class, "index.js"), `return 1`)
	}
	write(t, filepath.Join(root, "User", "mapping.properties"), "posts = collection(Post)\nteam = object(Team)\n")

	cfg := &config.Config{
		BaseDirectory: base,
		AppDirectory:  root,
		AppDBConfig:   "db.json",
		MappingConfig: "mapping.properties",
		Database:      config.DBConfig{Type: "sqlite", Database: filepath.Join(base, "unused.db")},
	}
	require.NoError(t, db.WriteConfig(cfg.DBConfigPath()))

	store, err := fragments.NewStore(root, "utf8", cfg.MappingConfig)
	require.NoError(t, err)
	logger := zaptest.NewLogger(t).Sugar()
	registry := datastore.NewRegistry(cfg, config.NewFileCache(), store, relations.NewReader(store, cfg.MappingConfig),
		datastore.SQLOpener(nil), logger)
	t.Cleanup(func() { registry.Close() })

	ctx := context.Background()
	require.NoError(t, registry.Rebuild(ctx))
	assert.Equal(t, "mariadb", registry.Database().Type)

	rec, err := registry.Find(ctx, "User", 1)
	require.NoError(t, err)
	assert.Equal(t, "ada", rec["name"])

	posts, err := registry.FindRelated(ctx, "User", 1, "_posts")
	require.NoError(t, err)
	assert.Len(t, posts, 2)

	team, err := registry.FindRelated(ctx, "User", 1, "_team")
	require.NoError(t, err)
	assert.Equal(t, "core", team.(models.Record)["name"])

	_, err = registry.Find(ctx, "User", 404)
	assert.True(t, errors.Is(err, types.ErrRecordNotFound))
}
