// Package store provides the persistence implementations behind
// contracts.Persistence: an in-memory store with JSON snapshots for
// local use and tests, and a PostgreSQL store for deployments.
package store

import (
	"github.com/easygenie/orchestrator/pkg/contracts"
)

// ErrNotFound is returned when a requested entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e *ErrNotFound) Error() string {
	return e.Entity + " not found: " + e.Key
}

// compile-time interface checks
var (
	_ contracts.Persistence = (*MemoryStore)(nil)
	_ contracts.Persistence = (*PostgresStore)(nil)
)
