package store

import "errors"

var (
	// ErrValidation indicates a record failed its collection schema at the
	// write boundary.
	ErrValidation = errors.New("record validation failed")

	// ErrQuotaExceeded indicates a write would push the collection past its
	// configured size quota. The previous value is left untouched.
	ErrQuotaExceeded = errors.New("collection quota exceeded")

	// ErrDuplicateID indicates an upsert into an append-only collection
	// reused an existing record ID.
	ErrDuplicateID = errors.New("duplicate record id")

	// ErrUnknownCollection indicates the collection name is not registered.
	ErrUnknownCollection = errors.New("unknown collection")
)
