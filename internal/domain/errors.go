package domain

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrStore        = errors.New("store unavailable")
	ErrPayloadInUse = errors.New("payload is referenced by deployments")
)
