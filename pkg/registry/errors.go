package registry

import "errors"

// Errors returned by registry operations.
var (
	// ErrNotFound indicates the addressed object, instance or resource does
	// not exist.
	ErrNotFound = errors.New("registry: not found")

	// ErrMethodNotAllowed indicates the resource lacks the access bit the
	// operation requires.
	ErrMethodNotAllowed = errors.New("registry: method not allowed")

	// ErrBadRequest indicates a payload that does not decode as the
	// addressed resource's type.
	ErrBadRequest = errors.New("registry: bad request")

	// ErrDuplicateInstance indicates an instance with the same object and
	// instance ID already exists.
	ErrDuplicateInstance = errors.New("registry: duplicate instance")

	// ErrObjectNotDefined indicates no ObjectDefinition exists for the ID.
	ErrObjectNotDefined = errors.New("registry: object not defined")

	// ErrDuplicateDefinition indicates the object ID is already defined.
	ErrDuplicateDefinition = errors.New("registry: duplicate object definition")

	// ErrNoHandler indicates the resource exists but nothing is bound for
	// the requested operation.
	ErrNoHandler = errors.New("registry: no handler bound")

	// ErrInvalidHandler indicates a value passed to Bind implements none of
	// Reader, Writer or Executor.
	ErrInvalidHandler = errors.New("registry: handler implements no operation")

	// ErrInvalidPath indicates a malformed object/instance/resource path.
	ErrInvalidPath = errors.New("registry: invalid path")
)
