package fragments_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
}

func newStore(t *testing.T, root, enc string) *fragments.Store {
	t.Helper()
	store, err := fragments.NewStore(root, enc, "mapping.properties")
	require.NoError(t, err)
	return store
}

func TestClasses(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "User"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Root"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))
	writeFile(t, filepath.Join(root, "db.json"), []byte(`{}`))

	classes, err := newStore(t, root, "utf8").Classes()
	require.NoError(t, err)
	assert.Equal(t, []string{"Root", "User"}, classes)
}

func TestFragments(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "Root")
	writeFile(t, filepath.Join(dir, "index.js"), []byte(`return "home"`))
	writeFile(t, filepath.Join(dir, "hello.js"), []byte(`return "hi"`))
	writeFile(t, filepath.Join(dir, "mapping.properties"), []byte("posts = collection(Post)\n"))
	writeFile(t, filepath.Join(dir, "settings.json"), []byte(`{}`))
	writeFile(t, filepath.Join(dir, ".hello.js.swp"), []byte("junk"))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "nested"), 0o755))

	got, err := newStore(t, root, "utf8").Fragments("Root")
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, fragments.Fragment{Name: "hello", File: "hello.js", Source: `return "hi"`}, got[0])
	assert.Equal(t, "index", got[1].Name)
}

func TestFragmentsMissingDirectory(t *testing.T) {
	_, err := newStore(t, t.TempDir(), "utf8").Fragments("Nope")

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFragmentDirectoryNotFound))
}

func TestFragmentsDuplicateMethod(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Root", "a.js"), []byte("1"))
	writeFile(t, filepath.Join(root, "Root", "a.txt"), []byte("2"))

	_, err := newStore(t, root, "utf8").Fragments("Root")
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrDuplicateMethod))
}

func TestFragmentsDecodeEncoding(t *testing.T) {
	root := t.TempDir()
	// "café" in ISO-8859-1
	writeFile(t, filepath.Join(root, "Root", "name.js"), []byte{'c', 'a', 'f', 0xe9})

	got, err := newStore(t, root, "latin1").Fragments("Root")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "café", got[0].Source)
}

func TestNewStoreUnknownEncoding(t *testing.T) {
	_, err := fragments.NewStore(t.TempDir(), "klingon")
	assert.Error(t, err)
}

func TestMethodName(t *testing.T) {
	assert.Equal(t, "hello", fragments.MethodName("hello.js"))
	assert.Equal(t, "hello.min", fragments.MethodName("hello.min.js"))
	assert.Equal(t, "plain", fragments.MethodName("plain"))
}

func TestFragmentsRejectsPathClassNames(t *testing.T) {
	store := newStore(t, t.TempDir(), "utf8")

	for _, name := range []string{"", "..", "../etc", "a/b", ".hidden"} {
		_, err := store.Fragments(name)
		assert.True(t, errors.Is(err, types.ErrFragmentDirectoryNotFound), name)
	}
}
