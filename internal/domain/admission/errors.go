package admission

import "errors"

var (
	ErrInvalid                   = errors.New("invalid input")
	ErrNotFound                  = errors.New("not found")
	ErrForbidden                 = errors.New("forbidden")
	ErrRoomExists                = errors.New("room number already exists")
	ErrRoomOccupied              = errors.New("room is occupied")
	ErrAlreadyDischarged         = errors.New("patient is already discharged")
	ErrDischargeAlreadyRequested = errors.New("discharge already requested")
	ErrChargeTooLow              = errors.New("discharge charge is below the minimum")
)
