package devdb

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExcludeComment(t *testing.T) {
	assert.Equal(t, "SELECT 1 ", excludeComment("SELECT 1 -- trailing"))
	assert.Equal(t, "SELECT '--not a comment' ", excludeComment("SELECT '--not a comment' -- but this is"))
	assert.Equal(t, `SELECT "a--b"`, excludeComment(`SELECT "a--b"`))
	assert.Equal(t, "", excludeComment("-- whole line"))
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("DB_DATABASE", "custom")

	opts := OptionsFromEnv()

	assert.Equal(t, "custom", opts.Database)
	assert.Equal(t, "3306", opts.Port)
}

func TestWriteConfig(t *testing.T) {
	d := &DevDB{Config: config.DBConfig{
		Type:            "mariadb",
		Host:            "localhost",
		Port:            "32768",
		Database:        "moka",
		User:            "moka",
		Password:        "secret",
		ConnectionLimit: 5,
	}}
	path := filepath.Join(t.TempDir(), "db.json")

	require.NoError(t, d.WriteConfig(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "secret", got["password"])
	assert.Equal(t, "32768", got["port"])

	var decoded config.DBConfig
	require.NoError(t, config.NewFileCache().Decode(path, &decoded))
	assert.Equal(t, d.Config, decoded)
}
