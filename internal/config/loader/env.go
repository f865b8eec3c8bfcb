package loader

import (
	"os"
	"strings"
)

// EnvLoader collects environment variables sharing a prefix.
//
// SETTINGSD_LOG_LEVEL becomes the key "log_level". Values stay strings;
// callers decide how to interpret them.
type EnvLoader struct {
	prefix  string
	environ func() []string
}

// NewEnvLoader creates a new environment variable loader.
// The prefix should include the trailing underscore (e.g., "SETTINGSD_").
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{prefix: prefix, environ: os.Environ}
}

// NewEnvLoaderFrom creates a loader reading from a fixed environment list
// in os.Environ form.
func NewEnvLoaderFrom(prefix string, env []string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		environ: func() []string { return env },
	}
}

// Load returns every prefixed variable keyed by its lowercased suffix.
// Empty values are kept; an empty result is a non-nil map.
func (l *EnvLoader) Load() (map[string]any, error) {
	config := make(map[string]any)

	for _, env := range l.environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}

		key := strings.ToLower(strings.TrimPrefix(name, l.prefix))
		if key == "" {
			continue
		}
		config[key] = value
	}

	return config, nil
}
