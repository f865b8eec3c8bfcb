package app

import "errors"

// ErrInvalidOption indicates a configuration value that cannot be used.
var ErrInvalidOption = errors.New("invalid option")

// InitError wraps a failure to initialize one component.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return "init " + e.Component + ": " + e.Err.Error()
}

func (e *InitError) Unwrap() error {
	return e.Err
}
