package medication

import "errors"

var (
	ErrInvalid        = errors.New("invalid input")
	ErrNotFound       = errors.New("not found")
	ErrForbidden      = errors.New("forbidden")
	ErrMedicineExists = errors.New("medicine already exists")
)
