package config

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/dshills/settingsd/internal/config/layer"
	"github.com/dshills/settingsd/internal/config/loader"
)

// EditFunc transforms the current document of a location.
// It receives a copy and may modify it in place.
type EditFunc func(doc layer.Document) (layer.Document, error)

// Edit reads loc, applies fn and writes the result back as a whole.
// A missing file starts from an empty document. A file that cannot be
// read or parsed is left untouched and its error returned.
//
// Edits are not serialized against other writers; the last write wins.
func (s *Service) Edit(ctx context.Context, loc layer.Location, fn EditFunc) error {
	if !loc.Writable() {
		return fmt.Errorf("editing %s settings: %w", loc, ErrNotWritable)
	}

	snap, err := s.Snapshot(ctx, loc)
	if err != nil {
		return err
	}
	if snap.State() == StateFailed {
		return fmt.Errorf("editing %s settings: %w", loc, snap.Err())
	}

	doc := snap.Document().Clone()
	if doc == nil {
		doc = layer.Document{}
	}

	doc, err = fn(doc)
	if err != nil {
		return err
	}
	return s.Write(ctx, loc, doc)
}

// SetValue returns doc with the JSON value raw stored at path. Path
// uses dot syntax; intermediate objects are created as needed.
func SetValue(doc layer.Document, path string, raw []byte) (layer.Document, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidEdit)
	}
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: value for %s is not valid JSON", ErrInvalidEdit, path)
	}

	data, err := encode(doc)
	if err != nil {
		return nil, err
	}
	out, err := sjson.SetRawBytes(data, path, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	return reparse(path, out)
}

// DeleteValue returns doc without the value at path. Deleting a missing
// path is not an error.
func DeleteValue(doc layer.Document, path string) (layer.Document, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidEdit)
	}

	data, err := encode(doc)
	if err != nil {
		return nil, err
	}
	out, err := sjson.DeleteBytes(data, path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	return reparse(path, out)
}

func encode(doc layer.Document) ([]byte, error) {
	if doc == nil {
		doc = layer.Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding settings: %w", err)
	}
	return data, nil
}

func reparse(path string, data []byte) (layer.Document, error) {
	m, err := loader.ParseJSON(path, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEdit, err)
	}
	return layer.Document(m), nil
}
