package feedback

import "errors"

var ErrInvalid = errors.New("invalid feedback")
