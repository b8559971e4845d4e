package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrStreamClosed  = errors.New("stream closed")
)
