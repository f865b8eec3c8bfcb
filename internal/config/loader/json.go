package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/tidwall/gjson"
)

// JSONLoader loads settings documents from JSON files.
//
// A document must be a JSON object at the top level. Numbers are decoded
// as json.Number so integers are written back exactly as they were read.
type JSONLoader struct {
	fs   FileSystem
	path string
}

// NewJSONLoader creates a new JSON loader for the given path.
func NewJSONLoader(path string) *JSONLoader {
	return &JSONLoader{
		fs:   DefaultFS(),
		path: path,
	}
}

// NewJSONLoaderWithFS creates a JSON loader with a custom file system.
func NewJSONLoaderWithFS(fsys FileSystem, path string) *JSONLoader {
	return &JSONLoader{
		fs:   fsys,
		path: path,
	}
}

// Load reads the document at the configured path.
func (l *JSONLoader) Load() (map[string]any, error) {
	return l.LoadFrom(l.path)
}

// LoadFrom reads the document at path.
// A missing file yields nil, nil.
func (l *JSONLoader) LoadFrom(path string) (map[string]any, error) {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	return ParseJSON(path, data)
}

// LoadFromReader reads a document from an io.Reader.
func (l *JSONLoader) LoadFromReader(r io.Reader) (map[string]any, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}

	return ParseJSON("<reader>", data)
}

// ParseJSON parses data as a settings document. source names the origin
// of the data in errors.
func ParseJSON(source string, data []byte) (map[string]any, error) {
	if !gjson.ValidBytes(data) {
		return nil, syntaxError(source, data)
	}

	if !gjson.ParseBytes(data).IsObject() {
		return nil, &ParseError{
			Path:    source,
			Message: "top-level value is not an object",
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Path: source, Message: err.Error(), Err: err}
	}
	if doc == nil {
		doc = make(map[string]any)
	}

	return doc, nil
}

// syntaxError builds a ParseError carrying the decoder's location details.
func syntaxError(source string, data []byte) error {
	var v any
	err := json.Unmarshal(data, &v)
	if err == nil {
		err = errors.New("invalid JSON")
	}

	pe := &ParseError{Path: source, Message: err.Error(), Err: err}

	var se *json.SyntaxError
	if errors.As(err, &se) {
		pe.Line, pe.Column = position(data, se.Offset)
	}

	return pe
}
