package emergency

import "errors"

var (
	ErrInvalid  = errors.New("invalid emergency case")
	ErrNotFound = errors.New("not found")
)
