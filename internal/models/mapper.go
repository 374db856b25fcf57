package models

import (
	"sort"
	"strings"

	"gorm.io/gorm/schema"
)

// DefaultIDAttribute is the primary key column every mapper uses
const DefaultIDAttribute = "id"

var naming = schema.NamingStrategy{SingularTable: true}

// Relation describes how a record reaches the records of another class
type Relation struct {
	ForeignKey string `json:"foreignKey" yaml:"foreignKey"`
	LocalField string `json:"localField" yaml:"localField"`
}

// Relations holds the relations of one class, keyed by target class name
type Relations struct {
	HasMany   map[string]Relation `json:"hasMany" yaml:"hasMany"`
	BelongsTo map[string]Relation `json:"belongsTo" yaml:"belongsTo"`
}

// NewRelations returns an empty relation set
func NewRelations() Relations {
	return Relations{
		HasMany:   make(map[string]Relation),
		BelongsTo: make(map[string]Relation),
	}
}

// Empty reports whether there are no relations at all
func (r Relations) Empty() bool {
	return len(r.HasMany) == 0 && len(r.BelongsTo) == 0
}

// Lookup finds the relation exposed under localField ("_posts" and "posts" are equivalent).
// hasMany reports which side of the relation matched.
func (r Relations) Lookup(localField string) (target string, rel Relation, hasMany bool, ok bool) {
	field := "_" + strings.TrimPrefix(localField, "_")

	for _, name := range sortedKeys(r.HasMany) {
		if r.HasMany[name].LocalField == field {
			return name, r.HasMany[name], true, true
		}
	}
	for _, name := range sortedKeys(r.BelongsTo) {
		if r.BelongsTo[name].LocalField == field {
			return name, r.BelongsTo[name], false, true
		}
	}
	return "", Relation{}, false, false
}

// MapperConfig is the data store's per-class mapping configuration
type MapperConfig struct {
	Name        string    `json:"recordClass" yaml:"recordClass"`
	Table       string    `json:"table" yaml:"table"`
	IDAttribute string    `json:"idAttribute" yaml:"idAttribute"`
	Relations   Relations `json:"relations" yaml:"relations"`
}

// NewMapperConfig derives the mapper of className, with its table named the GORM way
// (UserAccount -> user_account).
func NewMapperConfig(className string, relations Relations) MapperConfig {
	if relations.HasMany == nil {
		relations.HasMany = make(map[string]Relation)
	}
	if relations.BelongsTo == nil {
		relations.BelongsTo = make(map[string]Relation)
	}
	return MapperConfig{
		Name:        className,
		Table:       naming.TableName(className),
		IDAttribute: DefaultIDAttribute,
		Relations:   relations,
	}
}

// Record is one row loaded through a mapper
type Record map[string]interface{}

func sortedKeys(m map[string]Relation) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
