package state

import "errors"

var (
	// ErrAllocation is fatal, and only returned while sizing tables at startup
	ErrAllocation     = errors.New("table allocation failed")
	ErrNotFound       = errors.New("node not found")
	ErrInvalidState   = errors.New("invalid routing state")
	ErrNotImplemented = errors.New("not implemented")
	ErrMalformed      = errors.New("malformed input")
	ErrNoRoute        = errors.New("no route to destination")
	ErrQueueFull      = errors.New("queue full")
)
