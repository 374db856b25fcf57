package relations_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReader(t *testing.T, root string) *relations.Reader {
	t.Helper()
	store, err := fragments.NewStore(root, "utf8", "mapping.properties")
	require.NoError(t, err)
	return relations.NewReader(store, "mapping.properties")
}

func TestParse(t *testing.T) {
	got, err := relations.Parse("User", "# relations\nposts = collection(Post)\nteam: object(Team)\n")
	require.NoError(t, err)

	assert.Equal(t, map[string]models.Relation{
		"Post": {ForeignKey: "user_id", LocalField: "_posts"},
	}, got.HasMany)
	assert.Equal(t, map[string]models.Relation{
		"Team": {ForeignKey: "team_id", LocalField: "_team"},
	}, got.BelongsTo)
}

func TestParseIgnoresUnknownTypes(t *testing.T) {
	got, err := relations.Parse("User", "tags = bag(Tag)\n")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestParseMalformed(t *testing.T) {
	got, err := relations.Parse("User", "posts = collection Post\n")

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrRelationDescriptorParse))
	assert.True(t, got.Empty())
}

func TestReadMissingDescriptor(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Root"), 0o755))

	got, err := newReader(t, root).Read("Root")
	require.NoError(t, err)
	assert.True(t, got.Empty())
	assert.NotNil(t, got.HasMany)
	assert.NotNil(t, got.BelongsTo)
}

func TestReadDescriptor(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Team", "mapping.properties")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("members = collection(User)\n"), 0o644))

	reader := newReader(t, root)
	assert.Equal(t, path, reader.Path("Team"))

	got, err := reader.Read("Team")
	require.NoError(t, err)
	assert.Equal(t, models.Relation{ForeignKey: "team_id", LocalField: "_members"}, got.HasMany["User"])
}

func TestReadMalformedFallsBackToEmpty(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Team", "mapping.properties")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("members\n"), 0o644))

	got, err := newReader(t, root).Read("Team")
	assert.True(t, errors.Is(err, types.ErrRelationDescriptorParse))
	assert.True(t, got.Empty())
}
