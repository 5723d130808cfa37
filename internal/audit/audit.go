// Package audit keeps the per-account record of broadcast attempts.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/wabcast/internal/domain"
	"github.com/ashureev/wabcast/internal/store"
)

// Log appends and lists immutable broadcast audit records.
type Log struct {
	repo store.Repository
}

// NewLog creates an audit log backed by the given repository.
func NewLog(repo store.Repository) *Log {
	return &Log{repo: repo}
}

// Append records one broadcast attempt. Append-only: no dedup, no cap.
func (l *Log) Append(ctx context.Context, email, message string, numbers []string, outcome domain.Outcome) error {
	entry := &domain.LogEntry{
		Email:     email,
		Message:   message,
		Numbers:   numbers,
		Outcome:   outcome,
		CreatedAt: time.Now(),
	}
	if err := l.repo.AppendLogEntry(ctx, entry); err != nil {
		return err
	}
	slog.Info("Broadcast logged", "email", email, "recipients", len(numbers), "outcome", string(outcome))
	return nil
}

// List returns an account's entries in insertion order. An account with
// no entries yields an empty slice.
func (l *Log) List(ctx context.Context, email string) ([]*domain.LogEntry, error) {
	return l.repo.ListLogEntries(ctx, email)
}
