package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dshills/settingsd/internal/config/layer"
)

// testPaths returns paths rooted entirely inside a temp directory.
func testPaths(t *testing.T) Paths {
	t.Helper()
	base := t.TempDir()
	return ResolvePaths(
		filepath.Join(base, "project"),
		filepath.Join(base, "home"),
		filepath.Join(base, "etc", "managed-settings.json"),
	)
}

// writeRaw writes content to the file of loc, bypassing the Service.
func writeRaw(t *testing.T, paths Paths, loc layer.Location, content string) {
	t.Helper()
	path := paths.For(loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll error = %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile error = %v", err)
	}
}
