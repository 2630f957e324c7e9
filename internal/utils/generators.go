package utils

import "github.com/google/uuid"

// NewID returns a random v4 UUID string used as a primary key
func NewID() string {
	return uuid.NewString()
}
