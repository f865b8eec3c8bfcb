// Package loader reads configuration files into generic maps.
//
// JSONLoader reads settings documents; TOMLLoader reads the daemon's own
// configuration file; EnvLoader collects prefixed environment variables.
// File loaders return nil, nil when the file does not exist so callers can
// tell an absent file apart from a broken one.
package loader

import (
	"io"
	"os"
)

// Loader is the interface for configuration loaders.
type Loader interface {
	// Load reads configuration from the source and returns a map.
	// Returns nil, nil if the source doesn't exist (not an error).
	Load() (map[string]any, error)
}

// FileLoader is the interface for loaders that read from files.
type FileLoader interface {
	Loader
	// LoadFrom reads configuration from a specific path.
	LoadFrom(path string) (map[string]any, error)
}

// ReaderLoader is the interface for loaders that read from io.Reader.
type ReaderLoader interface {
	// LoadFromReader reads configuration from a reader.
	LoadFromReader(r io.Reader) (map[string]any, error)
}

// FileSystem is the read side of the file system used by loaders.
// A missing file must be reported with an error matching fs.ErrNotExist.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
}

// OSFS implements FileSystem using the real OS file system.
type OSFS struct{}

// ReadFile reads the entire file at path.
func (OSFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

var (
	_ FileLoader   = (*JSONLoader)(nil)
	_ ReaderLoader = (*JSONLoader)(nil)
	_ FileLoader   = (*TOMLLoader)(nil)
	_ ReaderLoader = (*TOMLLoader)(nil)
	_ Loader       = (*EnvLoader)(nil)
)

// DefaultFS returns the default file system (OS).
func DefaultFS() FileSystem {
	return OSFS{}
}
