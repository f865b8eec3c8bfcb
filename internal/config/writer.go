package config

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tidwall/pretty"

	"github.com/dshills/settingsd/internal/config/layer"
)

// indent matches the two-space layout users get from their editors.
var indent = &pretty.Options{Width: 0, Prefix: "", Indent: "  ", SortKeys: false}

// Marshal serializes doc as two-space indented JSON with a trailing newline.
func Marshal(doc layer.Document) ([]byte, error) {
	if doc == nil {
		doc = layer.Document{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}

	return pretty.PrettyOptions(buf.Bytes(), indent), nil
}

// Write replaces the file of loc with doc.
//
// The parent directory is created as needed and the file is swapped in
// atomically. Writing the local location also ensures the project's
// .gitignore lists settings.local.json; problems with that file are
// logged, not returned.
func (s *Service) Write(ctx context.Context, loc layer.Location, doc layer.Document) error {
	if !loc.Writable() {
		return fmt.Errorf("writing %s settings: %w", loc, ErrNotWritable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := Marshal(doc)
	if err != nil {
		return err
	}

	path := s.paths.For(loc)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}

	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s settings: %w", loc, err)
	}

	log := s.logger.WithField("location", loc)
	log.Debug("wrote %s", path)

	if loc == layer.LocationLocal {
		if err := ensureGitignore(s.paths.ProjectDir(), localSettingsFile); err != nil {
			log.Warn("updating .gitignore: %v", err)
		}
	}

	return nil
}

// Delete removes the file of loc. Deleting a missing file succeeds.
func (s *Service) Delete(ctx context.Context, loc layer.Location) error {
	if !loc.Writable() {
		return fmt.Errorf("deleting %s settings: %w", loc, ErrNotWritable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.paths.For(loc)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("deleting %s settings: %w", loc, err)
	}

	s.logger.WithField("location", loc).Debug("deleted %s", path)
	return nil
}

// writeFileAtomic writes data to a temporary file beside path and renames
// it into place, so readers see either the old or the new contents.
func writeFileAtomic(path string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("setting permissions: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}

	return nil
}
