package postlink

import "errors"

// ErrReadOnlySettings is returned when updating settings whose provider
// cannot be written.
var ErrReadOnlySettings = errors.New("postlink: settings are read-only")
