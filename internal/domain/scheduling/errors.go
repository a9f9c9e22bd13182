package scheduling

import "errors"

var (
	ErrInvalid           = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrStaffUnavailable  = errors.New("staff is not approved or not available")
	ErrDateInPast        = errors.New("date is in the past")
	ErrSlotOutOfHours    = errors.New("slot is outside operating hours")
	ErrSlotInPast        = errors.New("slot has already started")
	ErrSlotAlreadyBooked = errors.New("slot is already booked")
)
