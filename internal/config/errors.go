package config

import (
	"errors"

	"github.com/dshills/settingsd/internal/config/layer"
)

// Errors returned by configuration operations.
var (
	// ErrNotWritable indicates a write or delete against a read-only location.
	ErrNotWritable = errors.New("settings location is not writable")

	// ErrInvalidEdit indicates a key or value that cannot be applied to a document.
	ErrInvalidEdit = errors.New("invalid settings edit")

	// ErrUnknownLocation indicates a location name outside the fixed set.
	ErrUnknownLocation = layer.ErrUnknownLocation
)
