package store

import "errors"

var (
	// ErrNotFound is returned when a user or object does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateUsername is returned by CreateUser on a username collision.
	ErrDuplicateUsername = errors.New("username already exists")
)
