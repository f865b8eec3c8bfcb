package config

import (
	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/loader"
)

// Reader turns settings files into snapshots.
// It holds no mutable state and is safe for concurrent use.
type Reader struct {
	paths  Paths
	loader *loader.JSONLoader
}

// NewReader creates a reader for paths using fsys.
func NewReader(paths Paths, fsys loader.FileSystem) *Reader {
	if fsys == nil {
		fsys = loader.DefaultFS()
	}
	return &Reader{
		paths:  paths,
		loader: loader.NewJSONLoaderWithFS(fsys, ""),
	}
}

// Read loads path and tags the result with the location that owns it.
func (r *Reader) Read(path string) Snapshot {
	return r.read(r.paths.Locate(path), path)
}

// ReadLocation loads the file of loc.
func (r *Reader) ReadLocation(loc layer.Location) Snapshot {
	return r.read(loc, r.paths.For(loc))
}

func (r *Reader) read(loc layer.Location, path string) Snapshot {
	data, err := r.loader.LoadFrom(path)
	switch {
	case err != nil:
		return NewFailed(loc, path, err)
	case data == nil:
		return NewAbsent(loc, path)
	default:
		return NewPresent(loc, path, layer.Document(data))
	}
}
