package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrAlreadyExists is returned when an insert violates a uniqueness
	// constraint, e.g. a second delivery for the same order.
	ErrAlreadyExists = errors.New("entity already exists")
)
