package store

import "github.com/google/uuid"

// IDGenerator produces snapshot ids.
type IDGenerator interface {
	Next() string
}

// UUIDv7 generates time-ordered UUIDv7 ids.
type UUIDv7 struct{}

// Next returns a new UUIDv7 string. It panics only if the system random
// source fails.
func (UUIDv7) Next() string {
	return uuid.Must(uuid.NewV7()).String()
}
