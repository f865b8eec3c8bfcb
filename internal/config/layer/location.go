// Package layer models the four settings locations and how their documents
// combine into one effective document.
//
// Locations have a fixed precedence. Higher precedence locations override
// lower ones key by key during merging:
//
//	enterprise > local > project > user
//
// The order is not configurable.
package layer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownLocation is returned when a name does not match any location.
var ErrUnknownLocation = errors.New("unknown settings location")

// Location identifies one of the four settings files.
type Location uint8

const (
	// LocationUser is ~/.claude/settings.json.
	LocationUser Location = iota + 1
	// LocationProject is <root>/.claude/settings.json.
	LocationProject
	// LocationLocal is <root>/.claude/settings.local.json.
	LocationLocal
	// LocationEnterprise is the managed settings file. It is never written.
	LocationEnterprise
)

// Locations returns every location in increasing precedence order.
func Locations() []Location {
	return []Location{LocationUser, LocationProject, LocationLocal, LocationEnterprise}
}

// WritableLocations returns the locations that accept writes and deletes.
func WritableLocations() []Location {
	return []Location{LocationUser, LocationProject, LocationLocal}
}

// String returns the wire name of the location.
func (l Location) String() string {
	switch l {
	case LocationUser:
		return "user"
	case LocationProject:
		return "project"
	case LocationLocal:
		return "local"
	case LocationEnterprise:
		return "enterprise"
	default:
		return "unknown"
	}
}

// ParseLocation converts a wire name into a Location.
func ParseLocation(name string) (Location, error) {
	switch name {
	case "user":
		return LocationUser, nil
	case "project":
		return LocationProject, nil
	case "local":
		return LocationLocal, nil
	case "enterprise":
		return LocationEnterprise, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownLocation, name)
	}
}

// Precedence returns the merge rank. Higher values win.
func (l Location) Precedence() int {
	switch l {
	case LocationUser, LocationProject, LocationLocal, LocationEnterprise:
		return int(l)
	default:
		return 0
	}
}

// Valid reports whether l is one of the four locations.
func (l Location) Valid() bool {
	return l.Precedence() > 0
}

// Writable reports whether the location accepts writes.
func (l Location) Writable() bool {
	return l == LocationUser || l == LocationProject || l == LocationLocal
}

// MarshalJSON encodes the location as its wire name.
func (l Location) MarshalJSON() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownLocation, uint8(l))
	}
	return json.Marshal(l.String())
}

// UnmarshalJSON decodes a wire name.
func (l *Location) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseLocation(name)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
