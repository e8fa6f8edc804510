package storage

import (
	"errors"
)

var (
	// ErrInvalidWord if a word is empty or only whitespace.
	ErrInvalidWord = errors.New("invalid word")

	// ErrInvalidCount if a co-occurrence count is negative.
	ErrInvalidCount = errors.New("invalid co-occurrence count")

	ErrCancelled = errors.New("request has been cancelled")
	ErrNotFound  = errors.New("not found")
	ErrClosed    = errors.New("datastore is closed")
)
