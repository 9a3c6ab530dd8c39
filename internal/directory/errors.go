package directory

import "errors"

var (
	// ErrNotFound indicates that the requested record does not exist.
	ErrNotFound = errors.New("directory: not found")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("directory: duplicate")
	// ErrConstraintViolation indicates a referenced record blocks the write,
	// e.g. deleting a role that principals still hold.
	ErrConstraintViolation = errors.New("directory: constraint violation")
	// ErrSystemRole indicates an attempt to delete a seeded system role.
	ErrSystemRole = errors.New("directory: system role is protected")
)
