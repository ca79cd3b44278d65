package tables

import "errors"

// The closed set of failure kinds every manager operation can return.
// Callers classify with errors.Is; backend I/O failures surface as
// objstore.ErrUnavailable instead.
var (
	ErrInvalidKey     = errors.New("invalid table key")
	ErrNotFound       = errors.New("table not found")
	ErrNotPermitted   = errors.New("access not permitted")
	ErrNotOwner       = errors.New("caller is not the table owner")
	ErrMalformedTable = errors.New("malformed table")
	ErrNoSuchColumn   = errors.New("no such column")
)
