// Package datastore maps classes onto storage through named adapters and keeps the
// per-worker data store current.
package datastore

import (
	"context"
	"errors"
	"fmt"

	"github.com/localnerve/moka/internal/config"
	"github.com/localnerve/moka/internal/database"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/hints"
)

// Adapter is a storage connection the data store reads records through
type Adapter interface {
	Find(ctx context.Context, mapper models.MapperConfig, id interface{}) (models.Record, error)
	FindAll(ctx context.Context, mapper models.MapperConfig, where map[string]interface{}) ([]models.Record, error)
	Ping(ctx context.Context) error
	Close() error
}

// SQLAdapter reads records from the table of a mapper through GORM
type SQLAdapter struct {
	db       *gorm.DB
	kind     string
	comments bool
}

// NewSQLAdapter wraps an open connection. With comments set every query is tagged
// with the class it was issued for.
func NewSQLAdapter(db *gorm.DB, kind string, comments bool) *SQLAdapter {
	return &SQLAdapter{db: db, kind: kind, comments: comments}
}

// OpenSQLAdapter connects to db and verifies the connection
func OpenSQLAdapter(db config.DBConfig, log gormlogger.Interface) (*SQLAdapter, error) {
	conn, err := database.Connect(db, log)
	if err != nil {
		return nil, err
	}
	if err := database.Ping(conn); err != nil {
		database.Close(conn)
		return nil, fmt.Errorf("failed to reach %s database %s: %w", db.Type, db.Database, err)
	}
	return NewSQLAdapter(conn, db.Type, db.QueryComments), nil
}

// Kind is the configured database type
func (a *SQLAdapter) Kind() string {
	return a.kind
}

// Find loads the row of mapper's table whose id attribute equals id
func (a *SQLAdapter) Find(ctx context.Context, mapper models.MapperConfig, id interface{}) (models.Record, error) {
	row := map[string]interface{}{}
	err := a.query(ctx, mapper).
		Where(map[string]interface{}{mapper.IDAttribute: id}).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return normalize(row), nil
}

// FindAll loads every row of mapper's table matching where, ordered by id
func (a *SQLAdapter) FindAll(ctx context.Context, mapper models.MapperConfig, where map[string]interface{}) ([]models.Record, error) {
	q := a.query(ctx, mapper)
	if len(where) > 0 {
		q = q.Where(where)
	}

	var rows []map[string]interface{}
	if err := q.Order(mapper.IDAttribute).Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]models.Record, len(rows))
	for i, row := range rows {
		records[i] = normalize(row)
	}
	return records, nil
}

// Ping checks the connection is alive
func (a *SQLAdapter) Ping(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the connection
func (a *SQLAdapter) Close() error {
	return database.Close(a.db)
}

func (a *SQLAdapter) query(ctx context.Context, mapper models.MapperConfig) *gorm.DB {
	q := a.db.WithContext(ctx).Table(mapper.Table)
	if a.comments {
		q = q.Clauses(hints.Comment("select", "moka:"+mapper.Name))
	}
	return q
}

// normalize turns raw driver bytes into strings so records encode as text
func normalize(row map[string]interface{}) models.Record {
	rec := make(models.Record, len(row))
	for k, v := range row {
		if b, ok := v.([]byte); ok {
			rec[k] = string(b)
			continue
		}
		rec[k] = v
	}
	return rec
}
