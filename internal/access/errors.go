package access

import "errors"

var (
	ErrNotFound     = errors.New("access: not found")
	ErrConflict     = errors.New("access: conflict")
	ErrInvalidInput = errors.New("access: invalid input")
)
