package apperrors

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrEntityUnknown       = errors.New("unknown entity type")
	ErrReadOnlyViolation   = errors.New("statement is not read-only")
	ErrOperationNotAllowed = errors.New("operation not allowed")
	ErrDialectUnsupported  = errors.New("dialect not supported")
)
