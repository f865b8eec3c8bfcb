package config

import (
	"bytes"
	"encoding/json"

	"github.com/tidwall/gjson"

	"github.com/dshills/settingsd/internal/config/layer"
)

// Hierarchy is the four location snapshots and their merged view.
// It is built fresh on every fetch and never shared between requests.
type Hierarchy struct {
	User       Snapshot
	Project    Snapshot
	Local      Snapshot
	Enterprise Snapshot

	// Merged is the effective configuration. Never nil.
	Merged layer.Document

	origins map[string]layer.Location
}

// NewHierarchy merges the snapshots into a Hierarchy.
func NewHierarchy(user, project, local, enterprise Snapshot) *Hierarchy {
	merged, origins := MergeSnapshots(user, project, local, enterprise)
	return &Hierarchy{
		User:       user,
		Project:    project,
		Local:      local,
		Enterprise: enterprise,
		Merged:     merged,
		origins:    origins,
	}
}

// MergeSnapshots merges the present documents of the four snapshots in
// fixed precedence order and reports which location supplied each key.
// Absent and failed snapshots contribute nothing.
func MergeSnapshots(user, project, local, enterprise Snapshot) (layer.Document, map[string]layer.Location) {
	return layer.MergeLayers(
		layer.Layer{Location: layer.LocationUser, Data: user.Document()},
		layer.Layer{Location: layer.LocationProject, Data: project.Document()},
		layer.Layer{Location: layer.LocationLocal, Data: local.Document()},
		layer.Layer{Location: layer.LocationEnterprise, Data: enterprise.Document()},
	)
}

// Snapshots returns the snapshots in precedence order.
func (h *Hierarchy) Snapshots() []Snapshot {
	return []Snapshot{h.User, h.Project, h.Local, h.Enterprise}
}

// Snapshot returns the snapshot for loc.
func (h *Hierarchy) Snapshot(loc layer.Location) (Snapshot, bool) {
	switch loc {
	case layer.LocationUser:
		return h.User, true
	case layer.LocationProject:
		return h.Project, true
	case layer.LocationLocal:
		return h.Local, true
	case layer.LocationEnterprise:
		return h.Enterprise, true
	default:
		return Snapshot{}, false
	}
}

// Origin reports which location supplied the merged top-level key.
func (h *Hierarchy) Origin(key string) (layer.Location, bool) {
	loc, ok := h.origins[key]
	return loc, ok
}

// Lookup resolves a gjson path against the merged document and reports the
// location that supplied its top-level key.
func (h *Hierarchy) Lookup(path string) (any, layer.Location, bool) {
	if path == "" {
		return nil, 0, false
	}

	data, err := json.Marshal(h.Merged)
	if err != nil {
		return nil, 0, false
	}

	res := gjson.GetBytes(data, path)
	if !res.Exists() {
		return nil, 0, false
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(res.Raw)))
	dec.UseNumber()
	var val any
	if err := dec.Decode(&val); err != nil {
		return nil, 0, false
	}

	loc, _ := h.Origin(layer.TopLevelKey(path))
	return val, loc, true
}

// MarshalJSON encodes the hierarchy in its wire form.
func (h *Hierarchy) MarshalJSON() ([]byte, error) {
	merged := h.Merged
	if merged == nil {
		merged = layer.Document{}
	}
	return json.Marshal(struct {
		User       Snapshot       `json:"user"`
		Project    Snapshot       `json:"project"`
		Local      Snapshot       `json:"local"`
		Enterprise Snapshot       `json:"enterprise"`
		Merged     layer.Document `json:"merged"`
	}{h.User, h.Project, h.Local, h.Enterprise, merged})
}
