package compiler_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingEvictor struct {
	evicted []string
}

func (r *recordingEvictor) Evict(className string) {
	r.evicted = append(r.evicted, className)
}

type fixture struct {
	root     string
	build    string
	evictor  *recordingEvictor
	compiler *compiler.Compiler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	build := filepath.Join(t.TempDir(), "build")

	store, err := fragments.NewStore(root, "utf8", "mapping.properties")
	require.NoError(t, err)
	evictor := &recordingEvictor{}

	return &fixture{
		root:     root,
		build:    build,
		evictor:  evictor,
		compiler: compiler.New(store, relations.NewReader(store, "mapping.properties"), build, evictor, zaptest.NewLogger(t).Sugar()),
	}
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCompileWritesArtifact(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Root/hello.js", `return "hi"`)
	f.write(t, "Root/index.js", `response.send("<h1>home</h1>")`)

	artifact, err := f.compiler.Compile(context.Background(), "Root")
	require.NoError(t, err)

	assert.Equal(t, "Root", artifact.Class)
	assert.Equal(t, compiler.BaseClass, artifact.Extends)
	require.Len(t, artifact.Methods, 2)
	assert.Equal(t, "hello", artifact.Methods[0].Name)
	assert.Equal(t, "index", artifact.Methods[1].Name)
	assert.Equal(t, "Root", artifact.Mapper.Name)
	assert.Equal(t, "root", artifact.Mapper.Table)

	onDisk, err := compiler.ReadArtifact(f.build, "Root")
	require.NoError(t, err)
	assert.Equal(t, artifact, onDisk)

	m, ok := onDisk.Method("index")
	require.True(t, ok)
	assert.Equal(t, `response.send("<h1>home</h1>")`, m.Source)

	assert.Equal(t, []string{"Root"}, f.evictor.evicted)
}

func TestCompileIsDeterministic(t *testing.T) {
	f := newFixture(t)
	f.write(t, "User/find.js", `return this.getById(request.query.id)`)
	f.write(t, "User/list.js", `return store.findAll("User", {})`)
	f.write(t, "User/mapping.properties", "posts = collection(Post)\nteam = object(Team)\nroles = collection(Role)\n")

	path := compiler.ArtifactPath(f.build, "User")

	_, err := f.compiler.Compile(context.Background(), "User")
	require.NoError(t, err)
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	_, err = f.compiler.Compile(context.Background(), "User")
	require.NoError(t, err)
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, []string{"User", "User"}, f.evictor.evicted)
}

func TestCompileMissingDirectoryWritesNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.compiler.Compile(context.Background(), "Ghost")

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrFragmentDirectoryNotFound))
	_, statErr := os.Stat(compiler.ArtifactPath(f.build, "Ghost"))
	assert.True(t, os.IsNotExist(statErr))
	assert.Empty(t, f.evictor.evicted)
}

func TestCompileMalformedDescriptorStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Team/members.js", `return []`)
	f.write(t, "Team/mapping.properties", "members collection User(\n")

	artifact, err := f.compiler.Compile(context.Background(), "Team")
	require.NoError(t, err)
	assert.True(t, artifact.Mapper.Relations.Empty())
	require.Len(t, artifact.Methods, 1)
}

func TestCompileDoesNotValidateBodies(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Root/broken.js", `this is not javascript {{{`)

	artifact, err := f.compiler.Compile(context.Background(), "Root")
	require.NoError(t, err)
	assert.Len(t, artifact.Methods, 1)
}

func TestCompileHonoursCancelledContext(t *testing.T) {
	f := newFixture(t)
	f.write(t, "Root/hello.js", `return "hi"`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.compiler.Compile(ctx, "Root")
	assert.ErrorIs(t, err, context.Canceled)
}
