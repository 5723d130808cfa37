// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/ashureev/wabcast/internal/domain"
)

// Repository defines the interface for persisting accounts and audit logs.
type Repository interface {
	// GetAccount retrieves an account by email. Returns (nil, nil) if the
	// account does not exist.
	GetAccount(ctx context.Context, email string) (*domain.Account, error)

	// CreateAccount inserts a new account record. Fails with a conflict
	// error if the email is already registered.
	CreateAccount(ctx context.Context, account *domain.Account) error

	// UpdateAccountActive flips the activation flag for an account.
	UpdateAccountActive(ctx context.Context, email string, active bool) error

	// AppendLogEntry appends one broadcast audit record. Append-only, no
	// dedup, no size cap.
	AppendLogEntry(ctx context.Context, entry *domain.LogEntry) error

	// ListLogEntries returns an account's audit records in insertion order.
	// An account with no entries yields an empty slice, not an error.
	ListLogEntries(ctx context.Context, email string) ([]*domain.LogEntry, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
