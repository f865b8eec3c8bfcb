package config

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/loader"
	"github.com/dshills/settingsd/internal/logging"
)

// Service reads and writes the settings hierarchy rooted at one project.
// Its paths are fixed at construction. It keeps no cache: every read goes
// to disk. Methods are safe for concurrent use.
type Service struct {
	paths  Paths
	reader *Reader
	logger *logging.Logger
	fs     loader.FileSystem
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for non-fatal problems.
func WithLogger(l *logging.Logger) Option {
	return func(s *Service) {
		s.logger = logging.OrNull(l).WithComponent("config")
	}
}

// WithFileSystem sets the file system used for reads.
func WithFileSystem(fsys loader.FileSystem) Option {
	return func(s *Service) {
		s.fs = fsys
	}
}

// New creates a Service for paths.
func New(paths Paths, opts ...Option) *Service {
	s := &Service{
		paths:  paths,
		logger: logging.Null,
		fs:     loader.DefaultFS(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.reader = NewReader(paths, s.fs)
	return s
}

// Paths returns the service's location paths.
func (s *Service) Paths() Paths {
	return s.paths
}

// Hierarchy reads all four locations concurrently and merges them.
// Per-location failures are recorded on the snapshots; the only error
// returned is ctx's.
func (s *Service) Hierarchy(ctx context.Context) (*Hierarchy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	locs := layer.Locations()
	snaps := make([]Snapshot, len(locs))

	var g errgroup.Group
	for i, loc := range locs {
		g.Go(func() error {
			snaps[i] = s.reader.ReadLocation(loc)
			return nil
		})
	}
	_ = g.Wait()

	for _, snap := range snaps {
		if snap.State() == StateFailed {
			s.logger.WithField("location", snap.Location()).Warn("reading %s: %v", snap.Path(), snap.Err())
		}
	}

	return NewHierarchy(snaps[0], snaps[1], snaps[2], snaps[3]), nil
}

// Snapshot reads a single location.
func (s *Service) Snapshot(ctx context.Context, loc layer.Location) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	if !loc.Valid() {
		return Snapshot{}, ErrUnknownLocation
	}
	return s.reader.ReadLocation(loc), nil
}
