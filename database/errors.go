package database

import "errors"

var (
	// ErrNotFound record not found
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate unique key already taken
	ErrDuplicate = errors.New("duplicate record")

	// ErrConflict concurrent update lost the race
	ErrConflict = errors.New("concurrent update conflict")

	// ErrUnsupportedDBType unsupported database type
	ErrUnsupportedDBType = errors.New("unsupported database type")
)
