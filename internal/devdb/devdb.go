// Package devdb runs a disposable MariaDB in a container for development and the
// integration tests. Expects DB_* environment variables, usually loaded from a .env file.
package devdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	_ "github.com/go-sql-driver/mysql"
	"github.com/localnerve/moka/internal/config"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Options describe the database to start
type Options struct {
	Image        string
	Database     string
	User         string
	Password     string
	RootPassword string
	Port         string
}

// OptionsFromEnv reads the options from the environment, with development defaults
func OptionsFromEnv() Options {
	return Options{
		Image:        getEnv("DB_IMAGE", "mariadb:11"),
		Database:     getEnv("DB_DATABASE", "moka"),
		User:         getEnv("DB_USER", "moka"),
		Password:     getEnv("DB_PASSWORD", "moka"),
		RootPassword: getEnv("DB_ROOT_PASSWORD", "root"),
		Port:         getEnv("DB_PORT", "3306"),
	}
}

// DevDB is a running database container
type DevDB struct {
	Container testcontainers.Container
	Config    config.DBConfig
	t         *testing.T
}

// Start starts the container and waits until the database accepts queries.
// t may be nil when running outside of a test.
func Start(t *testing.T, opts Options) (*DevDB, error) {
	ctx := context.Background()

	tcpDbPort, err := nat.NewPort("tcp", opts.Port)
	if err != nil {
		return nil, fmt.Errorf("failed to create DB port: %w", err)
	}

	if exists, err := imageExists(ctx, opts.Image); err == nil && !exists {
		logMessage(t, "Image %s does not exist locally, pulling...", opts.Image)
	}

	dsn := func(host string, port nat.Port) string {
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", opts.User, opts.Password, host, port.Port(), opts.Database)
	}

	dbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        opts.Image,
			ExposedPorts: []string{string(tcpDbPort)},
			Env: map[string]string{
				"MYSQL_ROOT_PASSWORD": opts.RootPassword,
				"MYSQL_DATABASE":      opts.Database,
				"MYSQL_USER":          opts.User,
				"MYSQL_PASSWORD":      opts.Password,
			},
			WaitingFor: wait.ForSQL(tcpDbPort, "mysql", dsn).WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		if dbContainer != nil {
			dbContainer.Terminate(ctx)
		}
		return nil, fmt.Errorf("failed to start MariaDB: %w", err)
	}

	dbHost, err := dbContainer.Host(ctx)
	if err != nil {
		dbContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get MariaDB host: %w", err)
	}
	dbPort, err := dbContainer.MappedPort(ctx, tcpDbPort)
	if err != nil {
		dbContainer.Terminate(ctx)
		return nil, fmt.Errorf("failed to get MariaDB port: %w", err)
	}

	d := &DevDB{
		Container: dbContainer,
		Config: config.DBConfig{
			Type:            "mariadb",
			Host:            dbHost,
			Port:            dbPort.Port(),
			Database:        opts.Database,
			User:            opts.User,
			Password:        opts.Password,
			ConnectionLimit: 5,
		},
		t: t,
	}

	logMessage(t, "MariaDB listening at %s:%s", dbHost, dbPort.Port())

	return d, nil
}

// Terminate stops and removes the container
func (d *DevDB) Terminate() {
	if d.Container == nil {
		return
	}
	if err := d.Container.Terminate(context.Background()); err != nil {
		logMessage(d.t, "Failed to terminate MariaDB: %v", err)
	}
}

// Exec runs a script of ;-separated statements against the database
func (d *DevDB) Exec(script string) error {
	db, err := sql.Open("mysql", fmt.Sprintf("%s:%s@tcp(%s:%s)/%s",
		d.Config.User, d.Config.Password, d.Config.Host, d.Config.Port, d.Config.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to MariaDB: %w", err)
	}
	defer db.Close()

	return executeSQL(db, script)
}

// WriteConfig writes the connection settings as a database-config file at path.
// Workers watching the source root pick it up and rebuild their data stores.
func (d *DevDB) WriteConfig(path string) error {
	raw, err := json.MarshalIndent(map[string]interface{}{
		"type":            d.Config.Type,
		"host":            d.Config.Host,
		"port":            d.Config.Port,
		"database":        d.Config.Database,
		"user":            d.Config.User,
		"password":        d.Config.Password,
		"connectionLimit": d.Config.ConnectionLimit,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(raw, '\n'), 0o600)
}

func executeSQL(db *sql.DB, sql string) error {
	lines := strings.Split(sql, "\n")

	var ncls []string
	for _, l := range lines {
		ncls = append(ncls, excludeComment(l))
	}

	l := strings.Join(ncls, "\n")
	for _, q := range strings.Split(l, ";") {
		if strings.TrimSpace(q) == "" {
			continue
		}
		if _, err := db.Exec(q); err != nil {
			return fmt.Errorf("%s : when executing > %s", err.Error(), q)
		}
	}
	return nil
}

// excludeComment strips a trailing -- comment that is not inside a quoted string
func excludeComment(line string) string {
	var quote rune
	for i, r := range line {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case strings.HasPrefix(line[i:], "--"):
			return line[:i]
		}
	}
	return line
}

func imageExists(ctx context.Context, imageName string) (bool, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return false, err
	}
	defer cli.Close()

	images, err := cli.ImageList(ctx, image.ListOptions{})
	if err != nil {
		return false, err
	}

	for _, img := range images {
		for _, tag := range img.RepoTags {
			if tag == imageName {
				return true, nil
			}
		}
	}

	return false, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func logMessage(t *testing.T, format string, args ...any) {
	if t != nil {
		t.Logf(format, args...)
	} else {
		fmt.Printf(format+"\n", args...)
	}
}
