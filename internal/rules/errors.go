package rules

import "errors"

var (
	// ErrNilConfig is returned when Apply is called without a configuration to mutate.
	ErrNilConfig = errors.New("configuration must not be nil")
	// ErrInvalidKey is returned when an extension key does not match [a-z0-9]+(|[a-z0-9]+)*.
	ErrInvalidKey = errors.New("extension key must be one or more dot-less extensions separated by '|'")
	// ErrInvalidTransform is returned when a transform has an empty transformer name.
	ErrInvalidTransform = errors.New("transformer name must not be empty")
	// ErrInvalidOptions is returned when a preset or plugin list contains non-string entries.
	ErrInvalidOptions = errors.New("presets and plugins must be lists of strings")
)
