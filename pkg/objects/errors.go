package objects

import (
	"errors"
	"fmt"

	"github.com/backkem/lwm2m/pkg/registry"
)

var (
	// ErrUnsupportedResource is returned for a resource ID the instance
	// does not implement.
	ErrUnsupportedResource = fmt.Errorf("objects: unsupported resource: %w", registry.ErrNotFound)

	// ErrInvalidValue is returned when a written value is out of range for
	// its resource.
	ErrInvalidValue = fmt.Errorf("objects: invalid value: %w", registry.ErrBadRequest)

	// ErrNotSupported is returned by execute resources with no action
	// configured.
	ErrNotSupported = errors.New("objects: operation not supported")
)
