// Package relations reads the optional per-class relation descriptor, a properties file
// of the form
//
//	posts = collection(Post)
//	team  = object(Team)
//
// collection declares a hasMany relation, object a belongsTo relation.
package relations

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/types"
	"github.com/magiconair/properties"
)

const (
	TypeCollection = "collection"
	TypeObject     = "object"
)

var valuePattern = regexp.MustCompile(`^\s*([A-Za-z]+)\(\s*([^()\s]+)\s*\)\s*$`)

// Reader reads relation descriptors next to the fragments of a class
type Reader struct {
	store    *fragments.Store
	fileName string
}

// NewReader creates a Reader for descriptors named fileName
func NewReader(store *fragments.Store, fileName string) *Reader {
	return &Reader{store: store, fileName: fileName}
}

// Path is the descriptor location for className
func (r *Reader) Path(className string) string {
	return filepath.Join(r.store.ClassDir(className), r.fileName)
}

// Read returns the relations of className. A missing descriptor yields empty
// relations and no error. A descriptor that cannot be read or parsed yields empty
// relations and an error matching types.ErrRelationDescriptorParse.
func (r *Reader) Read(className string) (models.Relations, error) {
	content, err := r.store.ReadFile(r.Path(className))
	if errors.Is(err, fs.ErrNotExist) {
		return models.NewRelations(), nil
	}
	if err != nil {
		return models.NewRelations(), types.NewError(types.ErrRelationDescriptorParse, className, err)
	}

	relations, err := Parse(className, content)
	if err != nil {
		return models.NewRelations(), err
	}
	return relations, nil
}

// Parse parses descriptor content for className.
// Foreign keys follow the lower-cased owner name: a hasMany relation of User is
// keyed by user_id on the target, a belongsTo relation to Team by team_id on User.
func Parse(className, content string) (models.Relations, error) {
	p, err := properties.LoadString(content)
	if err != nil {
		return models.NewRelations(), types.NewError(types.ErrRelationDescriptorParse, className, err)
	}

	relations := models.NewRelations()
	for _, key := range p.Keys() {
		value, _ := p.Get(key)

		match := valuePattern.FindStringSubmatch(value)
		if match == nil {
			return models.NewRelations(), types.NewError(types.ErrRelationDescriptorParse, className,
				fmt.Errorf("invalid relation %q = %q", key, value))
		}
		kind, target := match[1], match[2]

		switch kind {
		case TypeCollection:
			relations.HasMany[target] = models.Relation{
				ForeignKey: strings.ToLower(className) + "_id",
				LocalField: "_" + key,
			}
		case TypeObject:
			relations.BelongsTo[target] = models.Relation{
				ForeignKey: strings.ToLower(target) + "_id",
				LocalField: "_" + key,
			}
		}
	}

	return relations, nil
}
