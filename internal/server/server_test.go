package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/dshills/settingsd/internal/config"
	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/watcher"
)

type fixture struct {
	paths   config.Paths
	svc     *config.Service
	watcher *watcher.Watcher
	server  *Server
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	base := t.TempDir()
	paths := config.ResolvePaths(
		filepath.Join(base, "project"),
		filepath.Join(base, "home"),
		filepath.Join(base, "etc", "managed-settings.json"),
	)

	svc := config.New(paths)
	w := watcher.New(watcher.WithLocator(paths.Locate))
	t.Cleanup(func() { _ = w.Close() })
	if err := w.Start(paths.All()); err != nil {
		t.Fatalf("Start error = %v", err)
	}

	return &fixture{paths: paths, svc: svc, watcher: w, server: New(svc, w, opts...)}
}

func (f *fixture) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

func mergedModel(t *testing.T, f *fixture) any {
	t.Helper()
	rec := f.do(t, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/settings status = %d", rec.Code)
	}
	merged, _ := decode(t, rec)["merged"].(map[string]any)
	return merged["model"]
}

func TestServer_EndToEnd(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/settings/project", `{"model":"x"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("PUT project status = %d body = %s", rec.Code, rec.Body)
	}
	if decode(t, rec)["success"] != true {
		t.Errorf("PUT body = %s", rec.Body)
	}
	if got := mergedModel(t, f); got != "x" {
		t.Fatalf("merged.model = %v, want x", got)
	}

	if rec := f.do(t, http.MethodPut, "/api/settings/local", `{"model":"y"}`); rec.Code != http.StatusOK {
		t.Fatalf("PUT local status = %d", rec.Code)
	}
	if got := mergedModel(t, f); got != "y" {
		t.Fatalf("merged.model = %v, want y", got)
	}

	data, err := os.ReadFile(filepath.Join(f.paths.ProjectDir(), ".gitignore"))
	if err != nil {
		t.Fatalf("reading .gitignore: %v", err)
	}
	if !strings.Contains(string(data), "settings.local.json") {
		t.Errorf(".gitignore = %q", data)
	}

	if rec := f.do(t, http.MethodDelete, "/api/settings/local", ""); rec.Code != http.StatusOK {
		t.Fatalf("DELETE local status = %d", rec.Code)
	}
	if got := mergedModel(t, f); got != "x" {
		t.Errorf("merged.model = %v, want x", got)
	}

	if rec := f.do(t, http.MethodDelete, "/api/settings/local", ""); rec.Code != http.StatusOK {
		t.Errorf("second DELETE status = %d, want 200", rec.Code)
	}
}

func TestServer_GetSettingsShape(t *testing.T) {
	f := newFixture(t)
	if err := os.MkdirAll(f.paths.ProjectDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.paths.For(layer.LocationProject), []byte(`{"model":`), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodGet, "/settings", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := decode(t, rec)
	for _, key := range []string{"user", "project", "local", "enterprise"} {
		snap, ok := body[key].(map[string]any)
		if !ok {
			t.Fatalf("%s missing from %s", key, rec.Body)
		}
		if snap["type"] != key {
			t.Errorf("%s.type = %v", key, snap["type"])
		}
	}

	project := body["project"].(map[string]any)
	if project["exists"] != false || project["error"] == nil {
		t.Errorf("project = %v, want exists=false with error", project)
	}
	if merged, ok := body["merged"].(map[string]any); !ok || len(merged) != 0 {
		t.Errorf("merged = %v, want {}", body["merged"])
	}
}

func TestServer_InvalidLevel(t *testing.T) {
	f := newFixture(t)

	for _, tc := range []struct{ method, target string }{
		{http.MethodPut, "/api/settings/enterprise"},
		{http.MethodPut, "/api/settings/global"},
		{http.MethodDelete, "/api/settings/enterprise"},
		{http.MethodDelete, "/settings/bogus"},
	} {
		rec := f.do(t, tc.method, tc.target, `{"a":1}`)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s status = %d, want 400", tc.method, tc.target, rec.Code)
			continue
		}
		if got := decode(t, rec)["error"]; got != "Invalid settings type" {
			t.Errorf("%s %s error = %v", tc.method, tc.target, got)
		}
	}

	if _, err := os.Stat(f.paths.For(layer.LocationEnterprise)); !os.IsNotExist(err) {
		t.Error("enterprise file must never be written")
	}
}

func TestServer_InvalidPayload(t *testing.T) {
	f := newFixture(t)

	for _, body := range []string{`[1,2]`, `"str"`, `{"a":`, `null`} {
		rec := f.do(t, http.MethodPut, "/api/settings/user", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("PUT %q status = %d, want 400", body, rec.Code)
			continue
		}
		if got := decode(t, rec)["error"]; got != "Invalid settings payload" {
			t.Errorf("PUT %q error = %v", body, got)
		}
	}

	if _, err := os.Stat(f.paths.For(layer.LocationUser)); !os.IsNotExist(err) {
		t.Error("rejected payload must not be written")
	}
}

func TestServer_PayloadTooLarge(t *testing.T) {
	f := newFixture(t, WithMaxBodyBytes(16))
	rec := f.do(t, http.MethodPut, "/settings/user", `{"model":"a very long value indeed"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServer_WriteFailure(t *testing.T) {
	f := newFixture(t)
	// A file where the settings directory should be makes MkdirAll fail.
	if err := os.MkdirAll(f.paths.Root(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.paths.ProjectDir(), []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec := f.do(t, http.MethodPut, "/api/settings/project", `{"a":"b"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg, _ := decode(t, rec)["error"].(string); msg == "" {
		t.Error("500 response should carry the error message")
	}
}

func TestServer_WatchPaths(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/api/settings/watch/paths", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Paths []string `json:"paths"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	want := f.paths.All()
	if len(body.Paths) != 4 {
		t.Fatalf("paths = %v", body.Paths)
	}
	for i := range want {
		if body.Paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, body.Paths[i], want[i])
		}
	}
}

func TestServer_PutUpdatesWatchPaths(t *testing.T) {
	f := newFixture(t)
	before := f.watcher.Stats().Restarts

	if rec := f.do(t, http.MethodPut, "/settings/local", `{}`); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := f.watcher.Stats().Restarts; got != before+1 {
		t.Errorf("Restarts = %d, want %d", got, before+1)
	}
	if f.watcher.State() != watcher.StateWatching {
		t.Errorf("state = %v, want watching", f.watcher.State())
	}
}

func TestServer_GetValue(t *testing.T) {
	f := newFixture(t)
	if rec := f.do(t, http.MethodPut, "/settings/user", `{"permissions":{"allow":["Read"]},"model":"u"}`); rec.Code != http.StatusOK {
		t.Fatal(rec.Body)
	}
	if rec := f.do(t, http.MethodPut, "/settings/project", `{"model":"p"}`); rec.Code != http.StatusOK {
		t.Fatal(rec.Body)
	}

	rec := f.do(t, http.MethodGet, "/api/settings/value?key=model", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode(t, rec)
	if body["value"] != "p" || body["location"] != "project" || body["key"] != "model" {
		t.Errorf("body = %v", body)
	}

	rec = f.do(t, http.MethodGet, "/api/settings/value?key=permissions.allow.0", "")
	if body := decode(t, rec); body["value"] != "Read" || body["location"] != "user" {
		t.Errorf("body = %v", body)
	}

	rec = f.do(t, http.MethodGet, "/api/settings/value?key=nope", "")
	if rec.Code != http.StatusNotFound || decode(t, rec)["error"] != "Setting not found" {
		t.Errorf("missing key status = %d body = %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/settings/value", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("no key status = %d, want 400", rec.Code)
	}
}

func TestServer_Health(t *testing.T) {
	f := newFixture(t)
	for _, target := range []string{"/health", "/api/health"} {
		rec := f.do(t, http.MethodGet, target, "")
		if rec.Code != http.StatusOK || decode(t, rec)["status"] != "ok" {
			t.Errorf("GET %s = %d %s", target, rec.Code, rec.Body)
		}
	}
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodPost, "/api/settings", `{}`)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestServer_Middleware(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("missing generated request ID")
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if got := rec.Header().Get(RequestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q, want abc-123", got)
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/settings/user", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	rec = httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("preflight status = %d, want 204", rec.Code)
	}
	if !strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "PUT") {
		t.Errorf("Allow-Methods = %q", rec.Header().Get("Access-Control-Allow-Methods"))
	}
}

func TestServer_EventStream(t *testing.T) {
	f := newFixture(t, WithKeepAlive(50*time.Millisecond))
	ts := httptest.NewServer(f.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/settings/watch/events", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET events error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := make(chan string, 64)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()

	// Wait for the connected comment so the subscription is in place.
	waitLine(t, lines, func(l string) bool { return l == ": connected" })

	// An external edit, not a PUT, so no restart races the event.
	if err := os.MkdirAll(f.paths.ProjectDir(), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := f.watcher.UpdatePaths(f.paths.All()); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(f.paths.For(layer.LocationProject), []byte(`{"model":"z"}`), 0o644); err != nil {
		t.Fatal(err)
	}

	waitLine(t, lines, func(l string) bool { return l == "event: settings-change" })
	data := waitLine(t, lines, func(l string) bool { return strings.HasPrefix(l, "data: ") })

	var ev map[string]any
	if err := json.Unmarshal([]byte(strings.TrimPrefix(data, "data: ")), &ev); err != nil {
		t.Fatalf("event data %q: %v", data, err)
	}
	if ev["path"] != f.paths.For(layer.LocationProject) || ev["location"] != "project" {
		t.Errorf("event = %v", ev)
	}
	if ev["kind"] != "add" && ev["kind"] != "change" {
		t.Errorf("kind = %v", ev["kind"])
	}

	waitLine(t, lines, func(l string) bool { return l == ": ping" })
}

func waitLine(t *testing.T, lines <-chan string, match func(string) bool) string {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatal("event stream closed")
			}
			if match(l) {
				return l
			}
		case <-deadline:
			t.Fatal("timed out waiting for event stream line")
			return ""
		}
	}
}

func TestServer_ServeShutdown(t *testing.T) {
	f := newFixture(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/health"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET health error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
