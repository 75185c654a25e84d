// Package idgen generates identifiers for new aggregates.
package idgen

import "github.com/google/uuid"

// UUIDGenerator issues random UUIDv4 identifiers.
type UUIDGenerator struct{}

// New creates a UUIDGenerator.
func New() *UUIDGenerator {
	return &UUIDGenerator{}
}

// GenerateID returns a new UUID string.
func (g *UUIDGenerator) GenerateID() string {
	return uuid.NewString()
}
