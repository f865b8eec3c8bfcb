// Package config resolves, reads, merges and writes the layered settings
// hierarchy.
//
// # Locations
//
// Settings live in four JSON files, lowest precedence first:
//
//	user        ~/.claude/settings.json
//	project     <root>/.claude/settings.json
//	local       <root>/.claude/settings.local.json
//	enterprise  fixed per OS, read-only
//
// # Merging
//
// The effective configuration is a shallow merge: each top-level key takes
// the value from the highest-precedence location that defines it. Nested
// objects are replaced wholesale, never combined.
//
// # Reading
//
// Every fetch reads all four files concurrently and builds a fresh
// Hierarchy. A missing file is Absent, a broken one is Failed, and neither
// stops the other locations from contributing to the merge.
//
//	svc := config.New(paths, config.WithLogger(logger))
//	h, err := svc.Hierarchy(ctx)
//	if err != nil {
//	    return err
//	}
//	model, loc, ok := h.Lookup("model")
//
// # Writing
//
// Write replaces a whole level file atomically. Writing the local level
// also makes sure settings.local.json is listed in <root>/.claude/.gitignore.
// The enterprise level can never be written.
//
// # Sub-packages
//
//   - layer: locations, documents and the merge
//   - loader: JSON, TOML and environment loaders
//   - watcher: fsnotify-based change notifier for the settings files
//   - notify: asynchronous observer fan-out used by the watcher
//   - export: rendering the merged document as JSON, YAML or TOML
package config
