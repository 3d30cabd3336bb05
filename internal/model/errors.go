package model

import "errors"

var (
	ErrConflict           = errors.New("already exists")
	ErrNotFound           = errors.New("not found")
	ErrServiceUnavailable = errors.New("WhatsApp is not connected")
	ErrValidation         = errors.New("validation failed")
)
