package handlers_test

import (
	"context"
	"fmt"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/localnerve/moka/internal/classes"
	"github.com/localnerve/moka/internal/compiler"
	"github.com/localnerve/moka/internal/fragments"
	"github.com/localnerve/moka/internal/handlers"
	"github.com/localnerve/moka/internal/middleware"
	"github.com/localnerve/moka/internal/models"
	"github.com/localnerve/moka/internal/relations"
	"github.com/localnerve/moka/internal/types"
	"go.uber.org/zap/zaptest"
)

// setupApp compiles the given Root fragments and serves them through a dispatcher
func setupApp(t *testing.T, fragmentFiles map[string]string) *fiber.App {
	t.Helper()
	return setupStoreApp(t, fragmentFiles, nil)
}

// setupStoreApp is setupApp with loaded classes bound to store
func setupStoreApp(t *testing.T, fragmentFiles map[string]string, store classes.Store) *fiber.App {
	t.Helper()
	root := t.TempDir()
	build := t.TempDir()

	for name, src := range fragmentFiles {
		path := filepath.Join(root, "Root", name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("Failed to create class directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatalf("Failed to write fragment: %v", err)
		}
	}

	logger := zaptest.NewLogger(t).Sugar()
	source, err := fragments.NewStore(root, "utf8", "mapping.properties")
	if err != nil {
		t.Fatalf("Failed to create fragment store: %v", err)
	}
	var stores classes.StoreFunc
	if store != nil {
		stores = func() classes.Store { return store }
	}
	cache := classes.NewCache(build, stores, logger)
	comp := compiler.New(source, relations.NewReader(source, "mapping.properties"), build, cache, logger)
	if _, err := comp.Compile(context.Background(), "Root"); err != nil {
		t.Fatalf("Failed to compile Root: %v", err)
	}

	dispatcher := handlers.NewDispatcher(cache, "Root", "index", logger)

	app := fiber.New()
	app.Use(middleware.RequestID())
	app.All("/*", dispatcher.Serve)
	return app
}

func get(t *testing.T, app *fiber.App, method, target string, body io.Reader) (int, string, string) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest(method, target, body))
	if err != nil {
		t.Fatalf("Failed to execute request: %v", err)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, resp.Header.Get("Content-Type"), string(raw)
}

// TestHelloScenario tests the basic route to method mapping
func TestHelloScenario(t *testing.T) {
	app := setupApp(t, map[string]string{
		"hello.js": `return "hi"`,
		"index.js": `response.send("<h1>home</h1>")`,
	})

	status, contentType, body := get(t, app, "GET", "/hello", nil)
	if status != 200 || body != "hi" {
		t.Errorf("Expected 200 \"hi\", got %d %q", status, body)
	}
	if !strings.HasPrefix(contentType, "text/html") {
		t.Errorf("Expected text/html, got %q", contentType)
	}

	status, _, body = get(t, app, "GET", "/", nil)
	if status != 200 || body != "<h1>home</h1>" {
		t.Errorf("Expected the default method, got %d %q", status, body)
	}

	status, contentType, body = get(t, app, "GET", "/missing", nil)
	if status != 500 {
		t.Errorf("Expected status 500, got %d", status)
	}
	if !strings.HasPrefix(contentType, "text/plain") {
		t.Errorf("Expected text/plain, got %q", contentType)
	}
	if !strings.Contains(body, "method not found") {
		t.Errorf("Expected the failure detail, got %q", body)
	}
}

// TestThrowingMethod tests that thrown errors surface as 500 with detail
func TestThrowingMethod(t *testing.T) {
	app := setupApp(t, map[string]string{
		"boom.js":   `throw new Error("kaboom")`,
		"broken.js": `this is not javascript {{{`,
		"fine.js":   `return { ok: true }`,
	})

	status, _, body := get(t, app, "GET", "/boom", nil)
	if status != 500 || !strings.Contains(body, "kaboom") {
		t.Errorf("Expected 500 with detail, got %d %q", status, body)
	}

	status, _, _ = get(t, app, "GET", "/broken", nil)
	if status != 500 {
		t.Errorf("Expected 500 for a syntax error, got %d", status)
	}

	status, contentType, body := get(t, app, "GET", "/fine", nil)
	if status != 200 || body != `{"ok":true}` {
		t.Errorf("Expected the rest of the class to keep working, got %d %q", status, body)
	}
	if contentType != "application/json" {
		t.Errorf("Expected application/json, got %q", contentType)
	}
}

// TestRequestCollaborator tests what a method can see of the request
func TestRequestCollaborator(t *testing.T) {
	app := setupApp(t, map[string]string{
		"echo.js": `response.status(201).set("X-Echo", request.method); return request.body + ":" + request.query.n + ":" + (request.id !== "")`,
		"quiet.js": `// nothing to say`,
	})

	status, _, body := get(t, app, "POST", "/echo?n=3", strings.NewReader("payload"))
	if status != 201 || body != "payload:3:true" {
		t.Errorf("Expected 201 \"payload:3:true\", got %d %q", status, body)
	}

	status, _, body = get(t, app, "GET", "/quiet", nil)
	if status != 200 || body != "" {
		t.Errorf("Expected an empty 200, got %d %q", status, body)
	}
}

// userStore serves a single user record
type userStore struct{}

func (userStore) Find(ctx context.Context, className string, id interface{}) (models.Record, error) {
	if fmt.Sprint(id) != "7" {
		return nil, types.ErrRecordNotFound
	}
	return models.Record{"id": int64(7), "name": "ada"}, nil
}

func (userStore) FindAll(ctx context.Context, className string, where map[string]interface{}) ([]models.Record, error) {
	return nil, nil
}

func (userStore) FindRelated(ctx context.Context, className string, id interface{}, field string) (interface{}, error) {
	return nil, nil
}

func (userStore) DefineMapper(className string, cfg models.MapperConfig) {}

// TestAwaitingMethods tests that method bodies may await the data store
func TestAwaitingMethods(t *testing.T) {
	app := setupStoreApp(t, map[string]string{
		"user.js":    "const u = await this.getById(request.query.id)\nresponse.send(u.name)",
		"profile.js": "const u = await this.getById(7)\nreturn { user: u.name }",
	}, userStore{})

	status, _, body := get(t, app, "GET", "/user?id=7", nil)
	if status != 200 || body != "ada" {
		t.Errorf("Expected 200 \"ada\", got %d %q", status, body)
	}

	status, _, body = get(t, app, "GET", "/profile", nil)
	if status != 200 || body != `{"user":"ada"}` {
		t.Errorf("Expected the awaited record as JSON, got %d %q", status, body)
	}

	status, _, body = get(t, app, "GET", "/user?id=8", nil)
	if status != 500 || !strings.Contains(body, "record not found") {
		t.Errorf("Expected a rejected await to fail the request, got %d %q", status, body)
	}
}

// TestMissingEntryClass tests that an unresolvable entry class fails every request
func TestMissingEntryClass(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()
	dispatcher := handlers.NewDispatcher(classes.NewCache(t.TempDir(), nil, logger), "Root", "index", logger)

	res := dispatcher.Handle(context.Background(), &classes.Request{Path: "/hello"})

	if res.StatusCode() != 500 {
		t.Errorf("Expected status 500, got %d", res.StatusCode())
	}
	if !strings.Contains(string(res.Body()), "artifact not found") {
		t.Errorf("Expected the resolution failure, got %q", res.Body())
	}
}

func TestMethodName(t *testing.T) {
	tests := map[string]string{
		"/":       "index",
		"":        "index",
		"/hello":  "hello",
		"/a/b":    "a/b",
		"/hello/": "hello/",
	}
	for path, want := range tests {
		if got := handlers.MethodName(path, "index"); got != want {
			t.Errorf("MethodName(%q) = %q, want %q", path, got, want)
		}
	}
}
