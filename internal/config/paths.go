package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dshills/settingsd/internal/config/layer"
)

const (
	settingsDir       = ".claude"
	settingsFile      = "settings.json"
	localSettingsFile = "settings.local.json"
	managedFile       = "managed-settings.json"
)

// DefaultEnterprisePath returns the managed settings path for the host OS.
func DefaultEnterprisePath() string {
	return enterprisePathFor(runtime.GOOS)
}

func enterprisePathFor(goos string) string {
	switch goos {
	case "darwin":
		return "/Library/Application Support/ClaudeCode/" + managedFile
	case "windows":
		return `C:\ProgramData\ClaudeCode\` + managedFile
	default:
		return "/etc/claude-code/" + managedFile
	}
}

// Paths holds the file path of each settings location.
// The zero value is not usable; build one with ResolvePaths or DefaultPaths.
type Paths struct {
	root       string
	user       string
	project    string
	local      string
	enterprise string
}

// ResolvePaths composes the location paths for a project root and home
// directory. An empty enterprise uses DefaultEnterprisePath.
func ResolvePaths(root, home, enterprise string) Paths {
	if enterprise == "" {
		enterprise = DefaultEnterprisePath()
	}
	return Paths{
		root:       root,
		user:       filepath.Join(home, settingsDir, settingsFile),
		project:    filepath.Join(root, settingsDir, settingsFile),
		local:      filepath.Join(root, settingsDir, localSettingsFile),
		enterprise: enterprise,
	}
}

// DefaultPaths resolves paths against the current user's home directory.
// An empty root means the working directory.
func DefaultPaths(root, enterprise string) (Paths, error) {
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return Paths{}, fmt.Errorf("resolving project root: %w", err)
		}
		root = wd
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolving project root: %w", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return Paths{}, fmt.Errorf("resolving home directory: %w", err)
	}

	return ResolvePaths(abs, home, enterprise), nil
}

// Root returns the project root.
func (p Paths) Root() string { return p.root }

// ProjectDir returns the project's settings directory.
func (p Paths) ProjectDir() string {
	return filepath.Join(p.root, settingsDir)
}

// For returns the path of loc, or "" for an unknown location.
func (p Paths) For(loc layer.Location) string {
	switch loc {
	case layer.LocationUser:
		return p.user
	case layer.LocationProject:
		return p.project
	case layer.LocationLocal:
		return p.local
	case layer.LocationEnterprise:
		return p.enterprise
	default:
		return ""
	}
}

// Locate returns the location whose path equals path.
// Paths outside the set are attributed to enterprise.
func (p Paths) Locate(path string) layer.Location {
	clean := filepath.Clean(path)
	for _, loc := range layer.Locations() {
		if filepath.Clean(p.For(loc)) == clean {
			return loc
		}
	}
	return layer.LocationEnterprise
}

// All returns the watch path set: user, project, local, enterprise.
func (p Paths) All() []string {
	locs := layer.Locations()
	out := make([]string, len(locs))
	for i, loc := range locs {
		out[i] = p.For(loc)
	}
	return out
}
