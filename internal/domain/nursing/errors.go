package nursing

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrStaffUnavailable = errors.New("staff is not approved or not available")
)
