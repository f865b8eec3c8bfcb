// Package export renders a settings document in other formats.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/pretty"
	"gopkg.in/yaml.v3"

	"github.com/dshills/settingsd/internal/config/layer"
)

// Format is an output format.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Formats returns the supported formats.
func Formats() []Format {
	return []Format{FormatJSON, FormatYAML, FormatTOML}
}

// ParseFormat parses a format name. "yml" is accepted for YAML.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "toml":
		return FormatTOML, nil
	default:
		return "", fmt.Errorf("unknown export format %q", name)
	}
}

// Render encodes doc in format.
func Render(doc layer.Document, format Format) ([]byte, error) {
	if doc == nil {
		doc = layer.Document{}
	}

	switch format {
	case FormatJSON:
		return renderJSON(doc)
	case FormatYAML:
		return renderYAML(doc)
	case FormatTOML:
		return renderTOML(doc)
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

func renderJSON(doc layer.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("encoding json: %w", err)
	}
	return pretty.PrettyOptions(buf.Bytes(), &pretty.Options{Indent: "  "}), nil
}

func renderYAML(doc layer.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(normalize(map[string]any(doc), false)); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding yaml: %w", err)
	}
	return buf.Bytes(), nil
}

func renderTOML(doc layer.Document) ([]byte, error) {
	data, err := toml.Marshal(normalize(map[string]any(doc), true))
	if err != nil {
		return nil, fmt.Errorf("encoding toml: %w", err)
	}
	return data, nil
}

// normalize converts decoded JSON into values the YAML and TOML encoders
// understand. json.Number becomes int64 or float64. TOML has no null, so
// with dropNull nil values are left out.
func normalize(v any, dropNull bool) any {
	switch val := v.(type) {
	case layer.Document:
		return normalize(map[string]any(val), dropNull)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if item == nil && dropNull {
				continue
			}
			out[k] = normalize(item, dropNull)
		}
		return out
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if item == nil && dropNull {
				continue
			}
			out = append(out, normalize(item, dropNull))
		}
		return out
	case json.Number:
		if i, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(string(val), 64); err == nil {
			return f
		}
		return string(val)
	default:
		return v
	}
}
