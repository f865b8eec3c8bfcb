package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dshills/settingsd/internal/config/loader"
	"github.com/dshills/settingsd/internal/logging"
)

// EnvPrefix prefixes environment variables that set options.
const EnvPrefix = "SETTINGSD_"

// DefaultAddr is the address the server listens on by default.
const DefaultAddr = ":3001"

// Options configures the application.
type Options struct {
	// Addr is the HTTP listen address.
	Addr string

	// Root is the project directory. Empty means the working directory.
	Root string

	// EnterprisePath overrides the managed settings location.
	EnterprisePath string

	// LogLevel sets the logging verbosity.
	LogLevel string

	// ConfigPath is the options file. Empty means DefaultConfigPath.
	ConfigPath string
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		Addr:     DefaultAddr,
		LogLevel: "info",
	}
}

// DefaultConfigPath returns the options file location:
// $XDG_CONFIG_HOME/settingsd/settingsd.toml, falling back to
// ~/.config/settingsd/settingsd.toml.
func DefaultConfigPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "settingsd", "settingsd.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "settingsd", "settingsd.toml")
}

// ResolveOptions layers defaults, the options file, SETTINGSD_*
// variables from env and finally flags. Non-empty flag fields win.
// A missing options file is not an error.
func ResolveOptions(flags Options, env []string) (Options, error) {
	opts := DefaultOptions()

	path := flags.ConfigPath
	if path == "" {
		path = DefaultConfigPath()
	}
	opts.ConfigPath = path

	type source struct {
		name string
		l    loader.Loader
	}
	sources := make([]source, 0, 2)
	if path != "" {
		sources = append(sources, source{path, loader.NewTOMLLoader(path)})
	}
	sources = append(sources, source{"environment", loader.NewEnvLoaderFrom(EnvPrefix, env)})

	for _, src := range sources {
		values, err := src.l.Load()
		if err != nil {
			return Options{}, err
		}
		if err := opts.apply(values, src.name); err != nil {
			return Options{}, err
		}
	}

	opts.override(flags)

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// Validate checks option values.
func (o Options) Validate() error {
	if o.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidOption)
	}
	if !logging.ValidLevel(o.LogLevel) {
		return fmt.Errorf("%w: log level %q (must be debug, info, warn, or error)", ErrInvalidOption, o.LogLevel)
	}
	return nil
}

// apply copies known keys from values. Unknown keys are ignored.
func (o *Options) apply(values map[string]any, source string) error {
	fields := map[string]*string{
		"addr":            &o.Addr,
		"root":            &o.Root,
		"enterprise_path": &o.EnterprisePath,
		"log_level":       &o.LogLevel,
	}

	for key, dst := range fields {
		raw, ok := values[key]
		if !ok {
			continue
		}
		s, ok := raw.(string)
		if !ok {
			return fmt.Errorf("%w: %s in %s must be a string, got %T", ErrInvalidOption, key, source, raw)
		}
		if s != "" {
			*dst = s
		}
	}
	return nil
}

func (o *Options) override(flags Options) {
	if flags.Addr != "" {
		o.Addr = flags.Addr
	}
	if flags.Root != "" {
		o.Root = flags.Root
	}
	if flags.EnterprisePath != "" {
		o.EnterprisePath = flags.EnterprisePath
	}
	if flags.LogLevel != "" {
		o.LogLevel = flags.LogLevel
	}
}
