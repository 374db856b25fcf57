package database

import (
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialector(t *testing.T) {
	for _, typ := range []string{"mysql", "mariadb", "postgres", "postgresql", "sqlite", "sqlite-pure", "sqlserver", "mssql"} {
		d, err := Dialector(config.DBConfig{Type: typ, Host: "localhost", Port: "1", Database: "app"})
		require.NoError(t, err, typ)
		assert.NotNil(t, d, typ)
	}

	_, err := Dialector(config.DBConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestConnectSQLite(t *testing.T) {
	for _, typ := range []string{"sqlite", "sqlite-pure"} {
		t.Run(typ, func(t *testing.T) {
			conn, err := Connect(config.DBConfig{
				Type:            typ,
				Database:        filepath.Join(t.TempDir(), "app.db"),
				ConnectionLimit: 3,
			}, nil)
			require.NoError(t, err)

			require.NoError(t, Ping(conn))
			require.NoError(t, Close(conn))
			assert.Error(t, Ping(conn))
		})
	}
}
