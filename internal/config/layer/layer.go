package layer

// Document is one settings file's content: a JSON object keyed by setting name.
//
// Values are whatever JSON decoding produced. The merge only looks at top-level
// keys; nested values are opaque.
type Document map[string]any

// Clone creates a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return Document(cloneMap(d))
}

// Layer pairs a document with the location it was read from.
type Layer struct {
	Location Location
	Data     Document
}

// cloneMap creates a deep copy of a map.
func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}

	dst := make(map[string]any, len(src))
	for key, val := range src {
		dst[key] = cloneValue(val)
	}

	return dst
}

// cloneSlice creates a deep copy of a slice.
func cloneSlice(src []any) []any {
	if src == nil {
		return nil
	}

	dst := make([]any, len(src))
	for i, val := range src {
		dst[i] = cloneValue(val)
	}

	return dst
}

func cloneValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		return cloneMap(v)
	case Document:
		return cloneMap(v)
	case []any:
		return cloneSlice(v)
	default:
		return val
	}
}
