package layer

import (
	"sort"
	"strings"
)

// Merge combines documents with a shallow overwrite fold.
//
// Documents are applied left to right: a later document's top-level key
// replaces the earlier value entirely, even when both values are objects.
// Keys a later document does not mention pass through unchanged. Nil
// documents contribute nothing. The inputs are not modified.
func Merge(docs ...Document) Document {
	result := make(Document)
	for _, doc := range docs {
		for key, val := range doc {
			result[key] = cloneValue(val)
		}
	}
	return result
}

// MergeLayers sorts layers by location precedence and merges them.
// It also reports which location supplied each merged key.
func MergeLayers(layers ...Layer) (Document, map[string]Location) {
	ordered := make([]Layer, len(layers))
	copy(ordered, layers)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Location.Precedence() < ordered[j].Location.Precedence()
	})

	docs := make([]Document, len(ordered))
	origins := make(map[string]Location)
	for i, l := range ordered {
		docs[i] = l.Data
		for key := range l.Data {
			origins[key] = l.Location
		}
	}

	return Merge(docs...), origins
}

// TopLevelKey returns the top-level key a gjson-style path starts with.
// Backslash escapes are honored and the first unescaped '.' or '|' ends
// the key.
func TopLevelKey(path string) string {
	var b strings.Builder
	for i := 0; i < len(path); i++ {
		c := path[i]
		if c == '\\' && i+1 < len(path) {
			i++
			b.WriteByte(path[i])
			continue
		}
		if c == '.' || c == '|' {
			break
		}
		b.WriteByte(c)
	}
	return b.String()
}
