package config

import (
	"encoding/json"
	"errors"

	"github.com/dshills/settingsd/internal/config/layer"
)

// State is the outcome of reading one location.
type State uint8

const (
	// StateAbsent means the file does not exist.
	StateAbsent State = iota
	// StatePresent means the file was read and parsed.
	StatePresent
	// StateFailed means the file exists but could not be read or parsed.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Snapshot is the read result for one location at one moment.
// Build values with NewPresent, NewAbsent or NewFailed.
type Snapshot struct {
	location layer.Location
	path     string
	state    State
	doc      layer.Document
	err      error
}

// NewPresent returns a snapshot holding doc. A nil doc is stored as empty.
func NewPresent(loc layer.Location, path string, doc layer.Document) Snapshot {
	if doc == nil {
		doc = layer.Document{}
	}
	return Snapshot{location: loc, path: path, state: StatePresent, doc: doc}
}

// NewAbsent returns a snapshot for a location whose file does not exist.
func NewAbsent(loc layer.Location, path string) Snapshot {
	return Snapshot{location: loc, path: path, state: StateAbsent}
}

// NewFailed returns a snapshot for a location that could not be loaded.
func NewFailed(loc layer.Location, path string, err error) Snapshot {
	if err == nil {
		err = errors.New("unknown read failure")
	}
	return Snapshot{location: loc, path: path, state: StateFailed, err: err}
}

// Location returns the snapshot's location.
func (s Snapshot) Location() layer.Location { return s.location }

// Path returns the file path that was read.
func (s Snapshot) Path() string { return s.path }

// State returns the read outcome.
func (s Snapshot) State() State { return s.state }

// Exists reports whether the file was read successfully.
func (s Snapshot) Exists() bool { return s.state == StatePresent }

// Document returns the parsed document, or nil unless present.
func (s Snapshot) Document() layer.Document { return s.doc }

// Err returns the read error, or nil unless failed.
func (s Snapshot) Err() error { return s.err }

type snapshotJSON struct {
	Type     layer.Location `json:"type"`
	Path     string         `json:"path"`
	Exists   bool           `json:"exists"`
	Settings any            `json:"settings,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// MarshalJSON encodes the snapshot in its wire form. Present snapshots
// always carry settings, even when the document is empty.
func (s Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{
		Type:   s.location,
		Path:   s.path,
		Exists: s.Exists(),
	}
	switch s.state {
	case StatePresent:
		out.Settings = s.doc
	case StateFailed:
		out.Error = s.err.Error()
	}
	return json.Marshal(out)
}
